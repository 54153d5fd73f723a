package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for index operations.
var (
	// ErrIndexFailure means the backend was unreachable or rejected the call.
	ErrIndexFailure = errors.New("vector index failure")

	// ErrDimensionMismatch means a vector length differs from the
	// collection's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidScope means one of the scope identifiers is empty.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidPayload means a point carries a malformed payload.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Index is a tenant-scoped vector collection.
//
// Implementations are safe for concurrent use.
type Index interface {
	// EnsureCollection creates the collection with the given dimension if it
	// is absent. If it exists with another dimension it returns
	// ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or overwrites points by id in a single backend call.
	Upsert(ctx context.Context, points []IndexedVector) error

	// Search returns at most limit hits inside scope, best first.
	Search(ctx context.Context, vector []float32, scope Scope, limit int) ([]Hit, error)

	// DeleteByScope removes every point in scope. Unknown scopes are a no-op.
	DeleteByScope(ctx context.Context, scope Scope) error

	Close() error
}
