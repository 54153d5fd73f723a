package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
)

var (
	// ErrProviderFailure indicates the model errored or returned no choices.
	ErrProviderFailure = errors.New("generation provider failure")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DefaultTemperature is used when no temperature is configured.
const DefaultTemperature = 0.2

// Gateway sends single-turn prompts to a model.
type Gateway struct {
	model       llms.Model
	modelName   string
	temperature float64
	limiter     *rate.Limiter
	metrics     *Metrics
	logger      *logging.Logger
	tracer      trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

// WithRateLimit caps model calls per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(g *Gateway) {
		if perSecond > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		}
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway wraps model. modelName labels metrics and spans.
func NewGateway(model llms.Model, modelName string, logger *logging.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Gateway{
		model:       model,
		modelName:   modelName,
		temperature: DefaultTemperature,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(logger)
	}
	return g
}

// Model returns the model name.
func (g *Gateway) Model() string {
	return g.modelName
}

// Generate sends system as a system message and user as a human message and
// returns the first choice's text.
func (g *Gateway) Generate(ctx context.Context, system, user string) (answer string, err error) {
	ctx, span := g.tracer.Start(ctx, "generation.generate", trace.WithAttributes(
		attribute.String("llm.model", g.modelName),
		attribute.Float64("llm.temperature", g.temperature),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("generation rate limit: %w", err)
		}
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err == nil && (resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil) {
		err = errors.New("no choices returned")
	}
	g.metrics.RecordGeneration(ctx, g.modelName, time.Since(start), err)
	if err != nil {
		g.logger.Debug(ctx, "generation failed", zap.String("model", g.modelName), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	answer = resp.Choices[0].Content
	span.SetAttributes(attribute.Int("llm.answer_len", len(answer)))
	return answer, nil
}
