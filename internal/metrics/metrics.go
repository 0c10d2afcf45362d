// Package metrics holds the process-wide Prometheus collectors, exposed on
// /metrics by the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "session",
	Name:      "opened_total",
	Help:      "Total cashier sessions opened.",
})

var SessionOpenConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "session",
	Name:      "open_conflicts_total",
	Help:      "Total session opens rejected because the cashier already had an open session at the outlet.",
})

var SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "session",
	Name:      "closed_total",
	Help:      "Total cashier sessions closed, by variance status.",
}, []string{"status"})

// CloseVarianceAbs observes the absolute variance at close, in currency units.
var CloseVarianceAbs = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "posdrawer",
	Subsystem: "session",
	Name:      "close_variance_abs",
	Help:      "Absolute drawer variance recorded at session close.",
	Buckets:   []float64{0, 0.01, 0.5, 1, 5, 10, 50, 100, 500},
})

var TransactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "ledger",
	Name:      "transactions_recorded_total",
	Help:      "Total ledger entries recorded, by transaction type.",
}, []string{"type"})

var UnknownTransactionTypes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "ledger",
	Name:      "unknown_types_total",
	Help:      "Ledger entries read back with a type the balance calculator does not know.",
}, []string{"type"})

var SettingsLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "settings",
	Name:      "lookups_total",
	Help:      "Outlet settings lookups by result (hit, miss, default, error).",
}, []string{"result"})

var PollResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "posdrawer",
	Subsystem: "poller",
	Name:      "results_total",
	Help:      "Poll fetch outcomes (ok, error, discarded).",
}, []string{"outcome"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "posdrawer",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})
