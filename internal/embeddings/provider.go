package embeddings

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/insightflow/internal/config"
)

// Provider is the interface for embedding providers.
type Provider interface {
	// EmbedDocuments returns one vector per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the embedding model name.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates the embedding provider selected by cfg.Embedding.
func NewProvider(cfg *config.Config) (Provider, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "openai", "":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey.Value(),
			Model:   ec.Model,
			BaseURL: ec.BaseURL,
		})
	case "ollama":
		return NewOllamaProvider(ec.Model, ec.BaseURL)
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL: ec.BaseURL,
			Model:   ec.Model,
			Client:  http.DefaultClient,
		})
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    ec.Model,
			CacheDir: ec.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, ec.Provider)
	}
}
