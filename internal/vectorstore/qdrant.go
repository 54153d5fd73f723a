package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const backendQdrant = "qdrant"

var qdrantTracer = otel.Tracer("insightflow.vectorstore.qdrant")

// DefaultIndexingThreshold is the Qdrant optimizer threshold applied to new
// collections when none is configured.
const DefaultIndexingThreshold = 20000

// QdrantConfig configures a QdrantIndex.
type QdrantConfig struct {
	Collection        string
	IndexingThreshold uint64
}

// QdrantIndex implements Index on a single Qdrant collection with payload
// filtering for tenant isolation.
type QdrantIndex struct {
	client     qdrant.Client
	collection string
	threshold  uint64
	logger     *logging.Logger

	mu  sync.Mutex
	dim int
}

// NewQdrantIndex wraps client. The collection is created lazily by
// EnsureCollection.
func NewQdrantIndex(client qdrant.Client, cfg QdrantConfig, logger *logging.Logger) (*QdrantIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if cfg.IndexingThreshold == 0 {
		cfg.IndexingThreshold = DefaultIndexingThreshold
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		threshold:  cfg.IndexingThreshold,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection on first use and verifies the
// dimension on every later call.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "vectorstore.ensure_collection")
	defer span.End()
	defer observe(backendQdrant, "ensure_collection", time.Now(), &err)
	defer recordSpanError(span, &err)

	span.SetAttributes(
		attribute.String("collection", q.collection),
		attribute.Int("dimension", dimension),
	)

	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidPayload, dimension)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dim != 0 {
		return checkDimension(q.collection, q.dim, dimension)
	}

	existing, exists, err := q.client.CollectionDimension(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	if exists {
		q.dim = int(existing)
		return checkDimension(q.collection, q.dim, dimension)
	}

	if err := q.client.CreateCollection(ctx, q.collection, uint64(dimension), q.threshold); err != nil {
		if !isCode(err, grpccodes.AlreadyExists) {
			return fmt.Errorf("%w: %v", ErrIndexFailure, err)
		}
		// Another writer created it first; adopt its dimension.
		existing, _, derr := q.client.CollectionDimension(ctx, q.collection)
		if derr != nil {
			return fmt.Errorf("%w: %v", ErrIndexFailure, derr)
		}
		q.dim = int(existing)
		return checkDimension(q.collection, q.dim, dimension)
	}

	q.dim = dimension
	return nil
}

// Upsert validates every point and writes them in one request.
func (q *QdrantIndex) Upsert(ctx context.Context, points []IndexedVector) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "vectorstore.upsert")
	defer span.End()
	defer observe(backendQdrant, "upsert", time.Now(), &err)
	defer recordSpanError(span, &err)

	span.SetAttributes(attribute.Int("points", len(points)))
	if len(points) == 0 {
		return nil
	}

	dim, err := q.dimension(ctx)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("%w: collection %s does not exist", ErrIndexFailure, q.collection)
	}
	if err := validatePoints(points, dim); err != nil {
		return err
	}

	wire := make([]*qdrant.Point, len(points))
	for i, p := range points {
		wire[i] = &qdrant.Point{
			ID:      p.ID,
			Vector:  p.Embedding,
			Payload: p.Payload.toMap(),
		}
	}

	if err := q.client.Upsert(ctx, q.collection, wire); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	PointsUpserted.WithLabelValues(backendQdrant).Add(float64(len(points)))
	return nil
}

// Search returns the nearest points within scope.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, scope Scope, limit int) (hits []Hit, err error) {
	ctx, span := qdrantTracer.Start(ctx, "vectorstore.search")
	defer span.End()
	defer observe(backendQdrant, "search", time.Now(), &err)
	defer recordSpanError(span, &err)

	if err := validateSearch(vector, scope, limit); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", limit))

	q.mu.Lock()
	dim := q.dim
	q.mu.Unlock()
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	results, err := q.client.Search(ctx, q.collection, vector, uint64(limit), qdrant.MatchAll(scope.filterPairs()...))
	if err != nil {
		if isCode(err, grpccodes.NotFound) {
			q.logger.Debug(ctx, "search on missing collection", zap.String("collection", q.collection))
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}

	hits = make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      r.ID,
			Score:   r.Score,
			Payload: payloadFromMap(r.Payload),
		})
	}
	hits = keepInScope(ctx, q.logger, backendQdrant, scope, hits)
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// DeleteByScope removes all points of one document.
func (q *QdrantIndex) DeleteByScope(ctx context.Context, scope Scope) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "vectorstore.delete")
	defer span.End()
	defer observe(backendQdrant, "delete", time.Now(), &err)
	defer recordSpanError(span, &err)

	if err := scope.Validate(); err != nil {
		return err
	}

	if err := q.client.DeleteByFilter(ctx, q.collection, qdrant.MatchAll(scope.filterPairs()...)); err != nil {
		if isCode(err, grpccodes.NotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	return nil
}

// Close closes the underlying client.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// dimension returns the cached collection dimension, loading it from the
// server the first time. Zero means the collection does not exist.
func (q *QdrantIndex) dimension(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.dim != 0 {
		return q.dim, nil
	}
	existing, exists, err := q.client.CollectionDimension(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	if exists {
		q.dim = int(existing)
	}
	return q.dim, nil
}

func isCode(err error, code grpccodes.Code) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := status.FromError(e); ok && st.Code() == code {
			return true
		}
	}
	return false
}

var _ Index = (*QdrantIndex)(nil)
