// Package qdrant wraps the official Qdrant gRPC client with the small set of
// collection and point operations the vector index needs.
package qdrant

import (
	"context"
)

// Client is the subset of Qdrant used by insightflow.
type Client interface {
	// CreateCollection creates a cosine collection of vectorSize dimensions.
	// indexingThreshold of zero leaves the server default in place.
	CreateCollection(ctx context.Context, name string, vectorSize, indexingThreshold uint64) error

	// CollectionDimension reports the configured vector size of a collection.
	// exists is false when the collection has not been created yet.
	CollectionDimension(ctx context.Context, name string) (dim uint64, exists bool, err error)

	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error)

	// DeleteByFilter removes every point matching filter.
	DeleteByFilter(ctx context.Context, collection string, filter *Filter) error

	Health(ctx context.Context) error
	Close() error
}

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint represents a search result with score.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter is a conjunction of exact-match conditions.
type Filter struct {
	Must []Condition
}

// Condition matches a payload field against a keyword.
type Condition struct {
	Field string
	Match string
}

// MatchAll builds a filter requiring every field to equal its value.
// Fields are emitted in the order given.
func MatchAll(pairs ...string) *Filter {
	f := &Filter{}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Must = append(f.Must, Condition{Field: pairs[i], Match: pairs[i+1]})
	}
	return f
}
