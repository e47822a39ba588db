package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_indexer_events_written_total",
			Help: "Total number of program events written to ClickHouse",
		},
		[]string{"event_name"},
	)

	WriteBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "biox_indexer_write_batch_duration_seconds",
			Help:    "Duration of ClickHouse event batch inserts",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
		},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_indexer_database_queries_total",
			Help: "Total number of ClickHouse queries",
		},
		[]string{"query", "status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_indexer_notifications_total",
			Help: "Total number of milestone notifications sent",
		},
		[]string{"event_name", "status"},
	)
)
