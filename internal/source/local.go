package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Local resolves paths on the local filesystem.
type Local struct {
	allowed []string
}

// NewLocal creates a local resolver. An empty allowlist accepts any path.
func NewLocal(allowed []string) (*Local, error) {
	patterns := make([]string, 0, len(allowed))
	for _, p := range allowed {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if !doublestar.ValidatePathPattern(p) {
			return nil, fmt.Errorf("invalid allowed path pattern %q", p)
		}
		patterns = append(patterns, p)
	}
	return &Local{allowed: patterns}, nil
}

// Resolve checks the path against the allowlist and verifies it is a readable
// regular file. The returned File needs no cleanup.
func (l *Local) Resolve(ctx context.Context, ref string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := filepath.Abs(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, ref, err)
	}
	if !l.allows(path) {
		return nil, fmt.Errorf("%w: %s", ErrNotAllowed, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	_ = f.Close()

	return &File{Path: path, Name: filepath.Base(path)}, nil
}

func (l *Local) allows(path string) bool {
	if len(l.allowed) == 0 {
		return true
	}
	for _, pattern := range l.allowed {
		if ok, _ := doublestar.PathMatch(pattern, path); ok {
			return true
		}
	}
	return false
}
