package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/qdrant"
)

// NewIndex creates the Index selected by cfg.VectorStore.Provider:
//   - "qdrant" (default): QdrantIndex against cfg.Qdrant.URL
//   - "chromem": embedded ChromemIndex, persisted when a path is set
//
// Both backends use cfg.Qdrant.Collection as the collection name.
func NewIndex(cfg *config.Config, logger *logging.Logger) (Index, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	switch cfg.VectorStore.Provider {
	case "qdrant", "":
		host, port, useTLS, err := cfg.Qdrant.Endpoint()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		client, err := qdrant.NewGRPCClient(&qdrant.ClientConfig{
			Host:           host,
			Port:           port,
			UseTLS:         useTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			RequestTimeout: cfg.Qdrant.RequestTimeout,
		}, logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIndexFailure, err)
		}
		threshold := cfg.Qdrant.IndexingThreshold
		if threshold < 0 {
			threshold = 0
		}
		idx, err := NewQdrantIndex(client, QdrantConfig{
			Collection:        cfg.Qdrant.Collection,
			IndexingThreshold: uint64(threshold),
		}, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return idx, nil

	case "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:       cfg.VectorStore.ChromemPath,
			Compress:   cfg.VectorStore.ChromemCompress,
			Collection: cfg.Qdrant.Collection,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: qdrant, chromem)",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
