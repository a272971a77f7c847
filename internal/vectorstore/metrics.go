package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexOperations counts index operations by kind and result.
	// Labels: operation (upsert, delete, search), result (success, error)
	IndexOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "vectorstore",
			Name:      "index_operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"operation", "result"},
	)

	// SearchResultCount tracks how many hits similarity searches return.
	SearchResultCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Subsystem: "vectorstore",
			Name:      "search_result_count",
			Help:      "Number of hits returned per similarity search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)
)
