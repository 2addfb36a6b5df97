// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chama",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chama",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	WithdrawalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chama",
		Name:      "withdrawal_decisions_total",
		Help:      "Withdrawal requests decided, by outcome.",
	}, []string{"outcome"})

	LoanTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chama",
		Name:      "loan_transitions_total",
		Help:      "Loan state transitions, by target status.",
	}, []string{"status"})

	ContributionSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chama",
		Name:      "contribution_settlements_total",
		Help:      "Contribution journal entries settled, by final status.",
	}, []string{"status"})

	GroupBalanceDrift = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chama",
		Name:      "group_balance_drift",
		Help:      "current_amount minus the journal-derived group funds.",
	}, []string{"group_id"})

	GatewayBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chama",
		Name:      "payment_gateway_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"gateway"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chama",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by outcome.",
	}, []string{"job", "outcome"})
)

func GroupLabel(groupID int32) string {
	return strconv.FormatInt(int64(groupID), 10)
}
