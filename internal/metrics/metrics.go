// Package metrics holds the prometheus collectors shared by the ledger
// services and the ops HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledger"

var (
	// BalanceMutations counts balance synchronizer runs by event
	// (create, update, delete, replay).
	BalanceMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_mutations_total",
			Help:      "Balance synchronizer runs by event",
		},
		[]string{"event"},
	)
	BalanceDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_drifted_wallets",
			Help:      "Wallets whose stored balance differed from their transactions at the last audit or recompute",
		},
	)
	RecurringSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_spawned_total",
			Help:      "Transactions created from recurring rules",
		},
	)
	RecurringFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_failures_total",
			Help:      "Recurring rules that failed to run and were rolled back",
		},
	)
	RecurringSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_skipped_total",
			Help:      "Recurring rules skipped because another worker held them",
		},
	)
	// IndexSync counts index bridge calls by op (upsert, remove) and
	// result (ok, skipped, error).
	IndexSync = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_sync_total",
			Help:      "Vector index synchronization attempts",
		},
		[]string{"op", "result"},
	)
	EmbeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	BudgetChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_checks_total",
			Help:      "Budget evaluations by resulting tier",
		},
		[]string{"tier"},
	)
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Index events handed to a dispatcher by transport and result",
		},
		[]string{"transport", "result"},
	)
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)
