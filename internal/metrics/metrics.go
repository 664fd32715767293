package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payone",
		Name:      "notifications_total",
		Help:      "Inbound notifications by action and outcome.",
	}, []string{"action", "outcome"})

	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payone",
		Name:      "gateway_requests_total",
		Help:      "Outbound gateway requests by request type and response status.",
	}, []string{"request", "status"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payone",
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of outbound gateway requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"request"})

	ExecutorOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payone",
		Name:      "executor_outcomes_total",
		Help:      "Idempotent executor decisions by transaction type.",
	}, []string{"transaction_type", "outcome"})

	LedgerConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payone",
		Name:      "ledger_conflicts_total",
		Help:      "Optimistic concurrency conflicts by component and whether they were retried.",
	}, []string{"component", "retried"})
)
