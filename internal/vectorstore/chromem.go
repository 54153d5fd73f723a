package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	backendChromem = "chromem"

	// chromemMetaCollection records per-collection settings chromem-go does
	// not expose, one document per collection keyed by its name.
	chromemMetaCollection = "_insightflow_meta"
	chromemDimensionKey   = "dimension"
)

var chromemTracer = otel.Tracer("insightflow.vectorstore.chromem")

// errNoEmbedder rejects any attempt by chromem-go to embed text itself.
// Points always arrive with precomputed embeddings.
var errNoEmbedder = errors.New("chromem index does not embed text")

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory.
	Path string

	// Compress enables gzip compression for persisted documents.
	Compress bool

	// Collection is the collection name.
	Collection string
}

// ChromemIndex implements Index using chromem-go.
//
// chromem-go performs exhaustive cosine search, which is adequate for
// single-node deployments and tests.
type ChromemIndex struct {
	db         *chromem.DB
	collection string
	logger     *logging.Logger

	mu  sync.Mutex
	dim int
}

// NewChromemIndex opens (or creates) a chromem database.
func NewChromemIndex(cfg ChromemConfig, logger *logging.Logger) (*ChromemIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = path
	}

	logger.Info(context.Background(), "chromem index initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.String("collection", cfg.Collection),
	)

	return &ChromemIndex{db: db, collection: cfg.Collection, logger: logger}, nil
}

// EnsureCollection creates the collection and records its dimension.
func (c *ChromemIndex) EnsureCollection(ctx context.Context, dimension int) (err error) {
	ctx, span := chromemTracer.Start(ctx, "vectorstore.ensure_collection")
	defer span.End()
	defer observe(backendChromem, "ensure_collection", time.Now(), &err)
	defer recordSpanError(span, &err)

	span.SetAttributes(attribute.Int("dimension", dimension))
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidPayload, dimension)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dim == 0 {
		stored, err := c.storedDimension(ctx)
		if err != nil {
			return err
		}
		c.dim = stored
	}
	if c.dim != 0 {
		return checkDimension(c.collection, c.dim, dimension)
	}

	if _, err := c.db.GetOrCreateCollection(c.collection, nil, noEmbed); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	meta, err := c.db.GetOrCreateCollection(chromemMetaCollection, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	err = meta.AddDocument(ctx, chromem.Document{
		ID:        c.collection,
		Metadata:  map[string]string{chromemDimensionKey: strconv.Itoa(dimension)},
		Embedding: []float32{1},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}

	c.dim = dimension
	c.logger.Info(ctx, "chromem collection created",
		zap.String("collection", c.collection),
		zap.Int("dimension", dimension),
	)
	return nil
}

// dimension returns the known dimension, reading the stored record the
// first time. Zero means the collection has not been created.
func (c *ChromemIndex) dimension(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dim == 0 {
		stored, err := c.storedDimension(ctx)
		if err != nil {
			return 0, err
		}
		c.dim = stored
	}
	return c.dim, nil
}

// storedDimension reads the recorded dimension, or zero if none.
func (c *ChromemIndex) storedDimension(ctx context.Context) (int, error) {
	meta := c.db.GetCollection(chromemMetaCollection, noEmbed)
	if meta == nil {
		return 0, nil
	}
	doc, err := meta.GetByID(ctx, c.collection)
	if err != nil {
		return 0, nil
	}
	dim, err := strconv.Atoi(doc.Metadata[chromemDimensionKey])
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt dimension record for %s: %v", ErrIndexFailure, c.collection, err)
	}
	return dim, nil
}

// Upsert writes all points. Existing ids are overwritten.
func (c *ChromemIndex) Upsert(ctx context.Context, points []IndexedVector) (err error) {
	ctx, span := chromemTracer.Start(ctx, "vectorstore.upsert")
	defer span.End()
	defer observe(backendChromem, "upsert", time.Now(), &err)
	defer recordSpanError(span, &err)

	span.SetAttributes(attribute.Int("points", len(points)))
	if len(points) == 0 {
		return nil
	}

	dim, err := c.dimension(ctx)
	if err != nil {
		return err
	}

	col := c.db.GetCollection(c.collection, noEmbed)
	if col == nil || dim == 0 {
		return fmt.Errorf("%w: collection %s does not exist", ErrIndexFailure, c.collection)
	}
	if err := validatePoints(points, dim); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  p.Payload.toMetadata(),
			Embedding: p.Embedding,
			Content:   p.Payload.Text,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	PointsUpserted.WithLabelValues(backendChromem).Add(float64(len(points)))
	return nil
}

// Search returns the nearest documents within scope.
func (c *ChromemIndex) Search(ctx context.Context, vector []float32, scope Scope, limit int) (hits []Hit, err error) {
	ctx, span := chromemTracer.Start(ctx, "vectorstore.search")
	defer span.End()
	defer observe(backendChromem, "search", time.Now(), &err)
	defer recordSpanError(span, &err)

	if err := validateSearch(vector, scope, limit); err != nil {
		return nil, err
	}

	dim, err := c.dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			ErrDimensionMismatch, len(vector), dim)
	}

	col := c.db.GetCollection(c.collection, noEmbed)
	if col == nil {
		return nil, nil
	}

	// chromem-go rejects a result count above the collection size.
	n := limit
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, scope.where(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}

	hits = make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      r.ID,
			Score:   r.Similarity,
			Payload: payloadFromMetadata(r.Metadata, r.Content),
		})
	}
	hits = keepInScope(ctx, c.logger, backendChromem, scope, hits)
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// DeleteByScope removes every document in scope.
func (c *ChromemIndex) DeleteByScope(ctx context.Context, scope Scope) (err error) {
	ctx, span := chromemTracer.Start(ctx, "vectorstore.delete")
	defer span.End()
	defer observe(backendChromem, "delete", time.Now(), &err)
	defer recordSpanError(span, &err)

	if err := scope.Validate(); err != nil {
		return err
	}

	col := c.db.GetCollection(c.collection, noEmbed)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, scope.where(), nil); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailure, err)
	}
	return nil
}

// Close is a no-op; chromem-go persists on every write.
func (c *ChromemIndex) Close() error {
	return nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

var _ Index = (*ChromemIndex)(nil)
