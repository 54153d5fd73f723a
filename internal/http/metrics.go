package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightflow/internal/logging"
	"github.com/fyrsmithlabs/insightflow/internal/rag"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/insightflow/internal/http"

// errorKindKey is the echo context key the error handler fills with the
// failure class of a request.
const errorKindKey = "insightflow.error_kind"

// kindNone labels requests that completed without error.
const kindNone = "none"

// operations maps route patterns to the pipeline operation they serve.
var operations = map[string]string{
	"/health":    "health",
	"/metrics":   "metrics",
	"/v1/ingest": "ingest",
	"/v1/query":  "query",
	"/v1/delete": "delete",
}

// operationFor returns the operation label for a matched route. Requests
// that matched no route share one label so raw paths never become labels.
func operationFor(route string) string {
	if op, ok := operations[route]; ok {
		return op
	}
	return "unmatched"
}

// kindForStatus classifies errors raised by echo itself, such as binding
// failures and unknown routes.
func kindForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return rag.KindNotFound.String()
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return rag.KindValidation.String()
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return rag.KindInternal.String()
	}
}

// apiMetrics records per-operation request counts, latency and concurrency.
type apiMetrics struct {
	logger   *logging.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// newAPIMetrics creates the instruments on the global meter provider.
// Instruments that fail to register are skipped.
func newAPIMetrics(logger *logging.Logger) *apiMetrics {
	return newAPIMetricsWithMeter(otel.Meter(httpInstrumentationName), logger)
}

func newAPIMetricsWithMeter(meter metric.Meter, logger *logging.Logger) *apiMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	m := &apiMetrics{logger: logger}

	var err error
	m.requests, err = meter.Int64Counter(
		"insightflow.http.requests",
		metric.WithDescription("API requests by pipeline operation, status code and error kind"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create http requests counter", zap.Error(err))
	}

	// Ingestion and generation run for tens of seconds, so the top buckets
	// stay wide.
	m.duration, err = meter.Float64Histogram(
		"insightflow.http.request.duration",
		metric.WithDescription("API request latency by pipeline operation and error kind"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create http duration histogram", zap.Error(err))
	}

	m.inFlight, err = meter.Int64UpDownCounter(
		"insightflow.http.in_flight",
		metric.WithDescription("API requests currently being served, by pipeline operation"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create http in-flight counter", zap.Error(err))
	}
	return m
}

// middleware records one observation per request. It must sit outside the
// recover middleware so panics are counted as internal failures.
func (m *apiMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			op := attribute.String("operation", operationFor(c.Path()))

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1, metric.WithAttributes(op))
				defer m.inFlight.Add(ctx, -1, metric.WithAttributes(op))
			}

			err := next(c)

			kind, _ := c.Get(errorKindKey).(string)
			if kind == "" {
				kind = kindNone
			}
			attrs := metric.WithAttributes(
				op,
				attribute.String("status", strconv.Itoa(c.Response().Status)),
				attribute.String("kind", kind),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(),
					metric.WithAttributes(op, attribute.String("kind", kind)))
			}
			return err
		}
	}
}
