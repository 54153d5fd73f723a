package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/insightflow/internal/config"
	"github.com/fyrsmithlabs/insightflow/internal/logging"
)

// Gateway enforces the batch contract over a Provider.
type Gateway struct {
	provider Provider
	limiter  *rate.Limiter
	cache    Cache
	cacheTTL time.Duration
	metrics  *Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRateLimit caps provider calls per second. Zero or less disables it.
func WithRateLimit(perSecond float64) Option {
	return func(g *Gateway) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCache enables the query embedding cache.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway wraps provider. logger may be nil.
func NewGateway(provider Provider, logger *logging.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Gateway{
		provider: provider,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(logger)
	}
	return g
}

// cachePingTimeout bounds the startup reachability check of the cache.
const cachePingTimeout = 2 * time.Second

// NewGatewayFromConfig builds the provider, limiter and cache from cfg. An
// unreachable cache is logged and kept; cache errors fall through to the
// provider.
func NewGatewayFromConfig(cfg *config.Config, logger *logging.Logger) (*Gateway, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithRateLimit(cfg.Embedding.RateLimit)}
	if cfg.Embedding.CacheRedisURL != "" {
		cache, err := NewRedisCache(cfg.Embedding.CacheRedisURL)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cachePingTimeout)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn(ctx, "embedding cache unreachable", zap.Error(err))
		}
		cancel()
		opts = append(opts, WithCache(cache, cfg.Embedding.CacheTTL))
	}
	return NewGateway(provider, logger, opts...), nil
}

// Model returns the provider's model name.
func (g *Gateway) Model() string {
	return g.provider.Model()
}

// Embed returns one vector per text, in input order, from a single provider
// call.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return g.embed(ctx, texts, "embed")
}

// EmbedQuery embeds a single query as a one-element batch, consulting the
// cache first when one is configured.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text cannot be empty", ErrEmptyInput)
	}

	var key string
	if g.cache != nil {
		key = cacheKey(g.provider.Model(), text)
		vec, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			g.logger.Warn(ctx, "embedding cache read failed", zap.Error(err))
		case ok:
			g.metrics.RecordCacheHit(ctx, g.provider.Model())
			return vec, nil
		}
	}

	vecs, err := g.embed(ctx, []string{text}, "embed_query")
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, vecs[0], g.cacheTTL); err != nil {
			g.logger.Warn(ctx, "embedding cache write failed", zap.Error(err))
		}
	}
	return vecs[0], nil
}

func (g *Gateway) embed(ctx context.Context, texts []string, op string) (vecs [][]float32, err error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	ctx, span := g.tracer.Start(ctx, "embeddings."+op, trace.WithAttributes(
		attribute.String("embedding.model", g.provider.Model()),
		attribute.Int("embedding.batch_size", len(texts)),
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
			return nil, fmt.Errorf("embedding rate limit: %w", err)
		}
	}

	start := time.Now()
	vecs, err = g.provider.EmbedDocuments(ctx, texts)
	if err == nil {
		err = checkBatch(vecs, len(texts))
	}
	g.metrics.RecordGeneration(ctx, g.provider.Model(), op, time.Since(start), len(texts), err)
	if err != nil {
		g.logger.Debug(ctx, "embedding call failed",
			zap.String("model", g.provider.Model()),
			zap.Int("batch_size", len(texts)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	return vecs, nil
}

// checkBatch verifies the provider returned one non-empty vector per text,
// all of the same length.
func checkBatch(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("expected %d embeddings, got %d", want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
		if len(v) != len(vecs[0]) {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), len(vecs[0]))
		}
	}
	return nil
}

// Close releases the provider and cache.
func (g *Gateway) Close() error {
	var errs []error
	if g.cache != nil {
		if err := g.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
