package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fyrsmithlabs/insightflow/internal/config"
)

// ObjectStore downloads s3://bucket/key references from an S3-compatible
// endpoint such as MinIO.
type ObjectStore struct {
	client *minio.Client
	// tempDir is the parent for per-download directories. Empty uses
	// os.TempDir.
	tempDir string
}

// NewObjectStore creates a client for cfg.Endpoint. No request is made until
// the first Resolve.
func NewObjectStore(cfg config.ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client for %s: %w", cfg.Endpoint, err)
	}
	return &ObjectStore{client: client}, nil
}

// Resolve downloads the object into a private temporary directory. Close on
// the returned File removes it.
func (s *ObjectStore) Resolve(ctx context.Context, ref string) (*File, error) {
	bucket, key, err := parseObjectRef(ref)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.tempDir, "insightflow-src-")
	if err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	name := path.Base(key)
	dest := filepath.Join(dir, name)
	if filepath.Dir(dest) != filepath.Clean(dir) {
		_ = cleanup()
		return nil, fmt.Errorf("%w: %s escapes the download directory", ErrNotAllowed, ref)
	}
	if err := s.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		_ = cleanup()
		switch minio.ToErrorResponse(err).Code {
		case minio.NoSuchKey, minio.NoSuchBucket, minio.AccessDenied:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("downloading %s: %w", ref, err)
	}

	return &File{Path: dest, Name: name, cleanup: cleanup}, nil
}

// parseObjectRef splits s3://bucket/key. The key's base name becomes the
// local file name, so "." and ".." are rejected.
func parseObjectRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, objectScheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %s is not an %s reference", ErrNotAllowed, ref, objectScheme)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.TrimLeft(key, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%w: %s must name a bucket and an object key", ErrNotFound, ref)
	}
	if base := path.Base(key); base == "." || base == ".." {
		return "", "", fmt.Errorf("%w: %s does not name an object", ErrNotAllowed, ref)
	}
	return bucket, key, nil
}
