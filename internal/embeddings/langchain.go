package embeddings

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// embeddingClient is the langchaingo surface the provider needs. Both
// *openai.LLM and *ollama.LLM satisfy it.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// LangchainProvider embeds through a langchaingo LLM client.
type LangchainProvider struct {
	client embeddingClient
	model  string
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL points at an OpenAI-compatible server. Empty uses api.openai.com.
	BaseURL string
}

// NewOpenAIProvider creates a provider backed by the OpenAI embeddings API.
func NewOpenAIProvider(cfg OpenAIConfig) (*LangchainProvider, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	token := cfg.APIKey
	if token == "" && cfg.BaseURL != "" {
		// OpenAI-compatible local servers accept any bearer token.
		token = "unused"
	}

	opts := []openai.Option{openai.WithEmbeddingModel(model)}
	if token != "" {
		opts = append(opts, openai.WithToken(token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrInvalidConfig, err)
	}
	return &LangchainProvider{client: llm, model: model}, nil
}

// NewOllamaProvider creates a provider backed by an Ollama server. An empty
// serverURL uses the client default (http://localhost:11434).
func NewOllamaProvider(model, serverURL string) (*LangchainProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: ollama model required", ErrInvalidConfig)
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrInvalidConfig, err)
	}
	return &LangchainProvider{client: llm, model: model}, nil
}

// EmbedDocuments embeds texts in a single client call.
func (p *LangchainProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return p.client.CreateEmbedding(ctx, texts)
}

// Model returns the embedding model name.
func (p *LangchainProvider) Model() string {
	return p.model
}

// Close is a no-op; the clients hold no resources beyond pooled connections.
func (p *LangchainProvider) Close() error {
	return nil
}
