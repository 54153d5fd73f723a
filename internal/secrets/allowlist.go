package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist contains content regex patterns to exclude from detection.
type Allowlist struct {
	Regexes   []string
	StopWords []string
}

// LoadAllowlists loads and merges allowlist files using union logic.
// Empty paths and missing files are skipped; invalid TOML or regex patterns
// return errors.
func LoadAllowlists(paths ...string) (*Allowlist, error) {
	merged := &Allowlist{}
	for _, path := range paths {
		if path == "" {
			continue
		}
		al, err := loadTOML(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		merged.Regexes = append(merged.Regexes, al.Regexes...)
		merged.StopWords = append(merged.StopWords, al.StopWords...)
	}
	return merged, nil
}

// loadTOML loads and validates a single allowlist file.
func loadTOML(path string) (*Allowlist, error) {
	var file struct {
		Allowlist struct {
			Regexes   []string `toml:"regexes"`
			StopWords []string `toml:"stopwords"`
		} `toml:"allowlist"`
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	al := &Allowlist{
		Regexes:   file.Allowlist.Regexes,
		StopWords: file.Allowlist.StopWords,
	}
	if err := al.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return al, nil
}

func (a *Allowlist) validate() error {
	for _, pattern := range a.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
	}
	return nil
}
