package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts gate outcomes by action and result
	// (allowed, trial_expired, quota_exhausted, subscription_ended, error).
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prospector",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Gate decisions by action and result.",
	}, []string{"action", "result"})

	// UsageIncrements counts generations charged to the ledger by plan.
	UsageIncrements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prospector",
		Subsystem: "usage",
		Name:      "increments_total",
		Help:      "Generations charged against a plan quota.",
	}, []string{"plan"})

	// ActionFailures counts wrapped actions that failed after being charged.
	ActionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prospector",
		Subsystem: "gate",
		Name:      "action_failures_total",
		Help:      "Gated actions that failed after the generation was charged.",
	}, []string{"action"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and outcome.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prospector",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prospector",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// TrialTransitions counts trial lifecycle operations.
	TrialTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prospector",
		Subsystem: "trial",
		Name:      "transitions_total",
		Help:      "Trial lifecycle transitions by operation.",
	}, []string{"operation"})
)
