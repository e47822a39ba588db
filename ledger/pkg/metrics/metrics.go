package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_ledger_transactions_total",
			Help: "Total number of transactions executed",
		},
		[]string{"instruction", "result"},
	)

	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "biox_ledger_transaction_duration_seconds",
			Help:    "Duration of transaction execution including commit",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"instruction"},
	)

	AccountLockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "biox_ledger_account_lock_wait_seconds",
			Help:    "Time spent waiting for account locks",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~0.8s
		},
	)

	Slot = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "biox_ledger_slot",
			Help: "Slot of the most recently executed transaction",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biox_ledger_events_published_total",
			Help: "Total number of events delivered to sinks",
		},
		[]string{"sink", "status"},
	)
)
