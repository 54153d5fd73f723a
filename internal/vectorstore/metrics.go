package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts index calls.
	// Labels: backend (qdrant, chromem), op, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"backend", "op", "result"},
	)

	// OperationDuration tracks index call latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightflow",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// PointsUpserted counts points written.
	PointsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "vectorstore",
			Name:      "points_upserted_total",
			Help:      "Total number of points written to the vector index",
		},
		[]string{"backend"},
	)

	// ScopeViolations counts search results dropped for carrying a payload
	// outside the requested scope.
	ScopeViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "vectorstore",
			Name:      "scope_violations_total",
			Help:      "Total number of search hits dropped because their payload scope did not match the query scope",
		},
		[]string{"backend"},
	)
)

// observe records one operation. Call it deferred with a pointer to the
// named error result.
func observe(backend, op string, start time.Time, err *error) {
	result := "success"
	if err != nil && *err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, result).Inc()
	OperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
