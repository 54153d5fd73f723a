package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestTotal counts ingestions.
	// Labels: result (ingested, failed, error)
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "rag",
			Name:      "ingest_total",
			Help:      "Total number of document ingestions by outcome",
		},
		[]string{"result"},
	)

	// ChunksIndexed counts chunks written by successful ingestions.
	ChunksIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "rag",
			Name:      "chunks_indexed_total",
			Help:      "Total number of chunks indexed",
		},
	)

	// QueriesTotal counts queries.
	// Labels: result (success, error)
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Total number of queries by outcome",
		},
		[]string{"result"},
	)

	// RetrievedChunks tracks non-empty hits per query.
	RetrievedChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insightflow",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Number of non-empty chunks retrieved per query",
			Buckets:   prometheus.LinearBuckets(0, 2, 11),
		},
	)

	// DeletesTotal counts deletions.
	// Labels: result (success, error)
	DeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightflow",
			Subsystem: "rag",
			Name:      "deletes_total",
			Help:      "Total number of document deletions by outcome",
		},
		[]string{"result"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
