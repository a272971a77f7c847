package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upserts counts create/update operations by category and outcome.
	Upserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "lifecycle",
			Name:      "upserts_total",
			Help:      "Entity create/update operations by category and result",
		},
		[]string{"category", "result"},
	)

	// Erasures counts erasure operations by category and outcome.
	Erasures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "lifecycle",
			Name:      "erasures_total",
			Help:      "Erasure operations by category and result",
		},
		[]string{"category", "result"},
	)

	// SweepDeletions counts entities removed by retention sweeps.
	SweepDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Subsystem: "lifecycle",
			Name:      "sweep_deletions_total",
			Help:      "Entities erased by retention sweeps",
		},
		[]string{"category"},
	)

	// SweepDuration tracks full-sweep latency in seconds.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Subsystem: "lifecycle",
			Name:      "sweep_duration_seconds",
			Help:      "Retention sweep duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
