package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jubilee_reward_batch_executions_total",
			Help: "Total number of reward batch execution attempts",
		},
		[]string{"status"},
	)

	BatchExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jubilee_reward_batch_execution_duration_seconds",
			Help:    "Duration of reward batch executions including confirmation wait",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
	)

	DistributionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jubilee_reward_distribution_runs_total",
			Help: "Total number of distribution processing runs by terminal outcome",
		},
		[]string{"outcome"},
	)

	PriceGateStopsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jubilee_reward_price_gate_stops_total",
			Help: "Total number of processing runs paused by the fee price gate",
		},
	)

	SnapshotPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jubilee_snapshot_pages_total",
			Help: "Total number of holder index pages fetched during snapshot collection",
		},
		[]string{"status"},
	)

	SnapshotCollectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jubilee_snapshot_collection_duration_seconds",
			Help:    "Duration of full snapshot collection runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~2048s
		},
	)

	BusPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jubilee_bus_published_total",
			Help: "Total number of events published on the in-process bus",
		},
		[]string{"topic"},
	)
)
