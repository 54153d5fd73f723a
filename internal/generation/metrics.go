package generation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/insightflow/internal/generation"

// Metrics holds generation instruments.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates generation metrics on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	ctx := context.Background()
	m := &Metrics{}
	var err error

	m.duration, err = meter.Float64Histogram(
		"insightflow.generation.duration_seconds",
		metric.WithDescription("Duration of completion calls in seconds, labeled by model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.requests, err = meter.Int64Counter(
		"insightflow.generation.requests_total",
		metric.WithDescription("Total completion calls by model"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"insightflow.generation.errors_total",
		metric.WithDescription("Total failed completion calls by model, including empty choice lists"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create errors counter", zap.Error(err))
	}
	return m
}

// RecordGeneration records one completion call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
