package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
)

const instrumentationName = "github.com/fyrsmithlabs/insightflow/internal/mcp"

// outcomeOK labels tool calls that returned without error.
const outcomeOK = "ok"

// toolMetrics instruments the rag tools. A nil instrument is skipped.
type toolMetrics struct {
	calls     metric.Int64Counter
	latency   metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
	chunks    metric.Int64Counter
	retrieved metric.Int64Histogram
}

func newToolMetrics(logger *logging.Logger) *toolMetrics {
	return newToolMetricsWithMeter(otel.Meter(instrumentationName), logger)
}

func newToolMetricsWithMeter(meter metric.Meter, logger *logging.Logger) *toolMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(ctx, "failed to create mcp instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &toolMetrics{}
	var err error
	m.calls, err = meter.Int64Counter("insightflow.mcp.tool.calls",
		metric.WithDescription("Tool calls by tool and outcome, where outcome is ok or the pipeline error kind"),
		metric.WithUnit("{call}"))
	warn("calls", err)

	m.latency, err = meter.Float64Histogram("insightflow.mcp.tool.duration",
		metric.WithDescription("Tool call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120))
	warn("duration", err)

	m.inFlight, err = meter.Int64UpDownCounter("insightflow.mcp.tool.in_flight",
		metric.WithDescription("Tool calls currently running"),
		metric.WithUnit("{call}"))
	warn("in_flight", err)

	m.chunks, err = meter.Int64Counter("insightflow.mcp.ingest.chunks",
		metric.WithDescription("Chunks indexed through rag_ingest"),
		metric.WithUnit("{chunk}"))
	warn("ingest.chunks", err)

	m.retrieved, err = meter.Int64Histogram("insightflow.mcp.query.retrieved",
		metric.WithDescription("Non-empty chunks retrieved per rag_query call"),
		metric.WithUnit("{chunk}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 6, 10, 20))
	warn("query.retrieved", err)

	return m
}

// begin marks a tool call as running. The returned func ends it.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	toolAttr := attribute.String("tool", tool)
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, metric.WithAttributes(toolAttr))
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("outcome", outcome(err))))
		}
	}
}

func (m *toolMetrics) ingested(ctx context.Context, res *rag.IngestResult) {
	if m.chunks != nil {
		m.chunks.Add(ctx, int64(res.Chunks), metric.WithAttributes(attribute.String("status", res.Status)))
	}
}

func (m *toolMetrics) answered(ctx context.Context, res *rag.AnswerResult) {
	if m.retrieved != nil {
		m.retrieved.Record(ctx, int64(res.Metadata.Retrieved))
	}
}

// outcome is ok for a nil error and the pipeline error kind otherwise.
func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	return rag.KindOf(err).String()
}
