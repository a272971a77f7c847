package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts matching requests by query category and outcome.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "matching",
			Name:      "requests_total",
			Help:      "Matching requests by query category and result",
		},
		[]string{"category", "result"},
	)

	// Duration tracks end-to-end matching latency in seconds.
	Duration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Subsystem: "matching",
			Name:      "request_duration_seconds",
			Help:      "Matching request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"category"},
	)
)
