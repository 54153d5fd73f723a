package rag

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/fyrsmithlabs/insightflow/internal/embeddings"
	"github.com/fyrsmithlabs/insightflow/internal/events"
	"github.com/fyrsmithlabs/insightflow/internal/extraction"
	"github.com/fyrsmithlabs/insightflow/internal/generation"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/secrets"
	"github.com/fyrsmithlabs/insightflow/internal/source"
	"github.com/fyrsmithlabs/insightflow/internal/vectorstore"
)

// Runtime is a Service with the clients it owns.
type Runtime struct {
	*Service
	closers []func() error
}

// Close releases every client in reverse construction order.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig builds every collaborator described by cfg. On error, the
// clients built so far are closed.
func NewFromConfig(cfg *config.Config, logger *logging.Logger) (rt *Runtime, err error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	resolver, err := source.NewResolver(cfg)
	if err != nil {
		return nil, fmt.Errorf("source resolver: %w", err)
	}

	embedder, err := embeddings.NewGatewayFromConfig(cfg, logger.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("embedding gateway: %w", err)
	}
	rt.closers = append(rt.closers, embedder.Close)

	generator, err := generation.NewGatewayFromConfig(cfg, logger.Named("generation"))
	if err != nil {
		return nil, fmt.Errorf("generation gateway: %w", err)
	}

	index, err := vectorstore.NewIndex(cfg, logger.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	rt.closers = append(rt.closers, index.Close)

	publisher, err := events.NewPublisher(cfg.Events, logger.Named("events"))
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}
	rt.closers = append(rt.closers, publisher.Close)

	deps := Dependencies{
		Resolver:  resolver,
		Extractor: extraction.NewRegistryFromConfig(cfg.Extraction),
		Embedder:  embedder,
		Index:     index,
		Generator: generator,
		Publisher: publisher,
	}
	if cfg.Ingest.RedactSecrets {
		redactor, err := secrets.NewRedactorFromFile(cfg.Ingest.SecretsAllow)
		if err != nil {
			return nil, fmt.Errorf("secret redactor: %w", err)
		}
		deps.Redactor = redactor
	}

	svc, err := NewService(deps, Options{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		StableIDs:    cfg.Ingest.StableIDs,
	}, logger.Named("rag"))
	if err != nil {
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}
