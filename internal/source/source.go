// Package source resolves document references to readable local files.
//
// Plain paths are served by Local, optionally restricted to a set of
// doublestar glob patterns. s3://bucket/key references are downloaded from an
// S3-compatible object store into a temporary file that the caller releases
// with File.Close.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/insightflow/internal/config"
)

var (
	// ErrNotFound indicates the referenced file does not exist or cannot be read.
	ErrNotFound = errors.New("file not found")

	// ErrNotAllowed indicates the reference is outside the configured allowlist
	// or uses a scheme with no configured backend.
	ErrNotAllowed = errors.New("file reference not allowed")
)

const objectScheme = "s3://"

// File is a resolved document on local disk.
type File struct {
	// Path is readable until Close is called.
	Path string
	// Name is the base name of the original reference.
	Name    string
	cleanup func() error
}

// Close releases any temporary copy. It is safe to call more than once.
func (f *File) Close() error {
	if f == nil || f.cleanup == nil {
		return nil
	}
	fn := f.cleanup
	f.cleanup = nil
	return fn()
}

// Resolver turns a file reference into a local file.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*File, error)
}

// Router dispatches references by scheme.
type Router struct {
	local   Resolver
	objects Resolver
}

// NewRouter creates a router. objects may be nil, which rejects s3:// refs.
func NewRouter(local, objects Resolver) *Router {
	return &Router{local: local, objects: objects}
}

// Resolve implements Resolver.
func (r *Router) Resolve(ctx context.Context, ref string) (*File, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrNotFound)
	}
	if strings.HasPrefix(ref, objectScheme) {
		if r.objects == nil {
			return nil, fmt.Errorf("%w: object storage is not configured for %s", ErrNotAllowed, ref)
		}
		return r.objects.Resolve(ctx, ref)
	}
	return r.local.Resolve(ctx, ref)
}

// NewResolver builds the resolver described by cfg. The object store backend
// is enabled when objectstore.endpoint is set.
func NewResolver(cfg *config.Config) (*Router, error) {
	local, err := NewLocal(cfg.Ingest.AllowedPaths)
	if err != nil {
		return nil, err
	}
	if cfg.ObjectStore.Endpoint == "" {
		return NewRouter(local, nil), nil
	}
	objects, err := NewObjectStore(cfg.ObjectStore)
	if err != nil {
		return nil, err
	}
	return NewRouter(local, objects), nil
}
