package generation

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// NewModel builds the langchaingo model selected by cfg.Chat and returns it
// with its resolved name.
func NewModel(cfg *config.Config) (llms.Model, string, error) {
	cc := cfg.Chat
	switch cc.Provider {
	case "openai", "":
		name := cc.Model
		if name == "" {
			name = DefaultOpenAIModel
		}
		token := cfg.OpenAI.APIKey.Value()
		if token == "" && cc.BaseURL != "" {
			// OpenAI-compatible local servers accept any bearer token.
			token = "unused"
		}
		opts := []openai.Option{openai.WithModel(name)}
		if token != "" {
			opts = append(opts, openai.WithToken(token))
		}
		if cc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cc.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, "", fmt.Errorf("%w: openai: %v", ErrInvalidConfig, err)
		}
		return llm, name, nil

	case "ollama":
		if cc.Model == "" {
			return nil, "", fmt.Errorf("%w: chat.model is required for ollama", ErrInvalidConfig)
		}
		opts := []ollama.Option{ollama.WithModel(cc.Model)}
		if cc.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cc.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, "", fmt.Errorf("%w: ollama: %v", ErrInvalidConfig, err)
		}
		return llm, cc.Model, nil

	default:
		return nil, "", fmt.Errorf("%w: unknown chat provider %q", ErrInvalidConfig, cc.Provider)
	}
}

// NewGatewayFromConfig builds the model, temperature and limiter from cfg.
func NewGatewayFromConfig(cfg *config.Config, logger *logging.Logger) (*Gateway, error) {
	model, name, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(model, name, logger,
		WithTemperature(cfg.Chat.Temperature),
		WithRateLimit(cfg.Chat.RateLimit),
	), nil
}
