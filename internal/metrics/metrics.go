package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueAttempts counts every HTTP call made by the request queue, by outcome.
	QueueAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_queue_attempts_total",
			Help: "Total number of outbound API calls made by the request queue",
		},
		[]string{"outcome"},
	)

	// QueueWait tracks how long an item waited between submission and dispatch.
	QueueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reader_queue_wait_seconds",
			Help:    "Time between submission and first dispatch of a queued request",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueueDepth is the number of items waiting to be dispatched.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reader_queue_depth",
			Help: "Number of requests waiting in the queue",
		},
	)

	// StageEntries counts entries into each fallback stage.
	StageEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_stage_entries_total",
			Help: "Total number of times each fallback stage was entered",
		},
		[]string{"stage"},
	)

	// Results counts answered requests by provenance tag.
	Results = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_results_total",
			Help: "Total number of results returned, by source tier",
		},
		[]string{"source"},
	)

	// WriteBackFailures counts swallowed background cache writes.
	WriteBackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reader_writeback_failures_total",
			Help: "Total number of failed background cache writes",
		},
		[]string{"kind"},
	)

	// Online reports the current network state (1 online, 0 offline).
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reader_network_online",
			Help: "Current connectivity state as seen by the reader",
		},
	)
)
