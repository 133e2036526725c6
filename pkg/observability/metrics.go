// Package observability exposes Prometheus metrics for step execution
// and gate evaluation. Callers that do not scrape metrics pay only the
// cost of a counter increment.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_steps_executed_total",
			Help: "Total steps executed by adapter and adapter kind",
		},
		[]string{"adapter", "kind"},
	)

	stepsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_steps_failed_total",
			Help: "Total failed steps by adapter and adapter kind",
		},
		[]string{"adapter", "kind"},
	)

	tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tokens_used_total",
			Help: "Total tokens consumed by adapter",
		},
		[]string{"adapter"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_step_duration_seconds",
			Help:    "Step execution time by adapter kind",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)

	gateEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_gate_evaluations_total",
			Help: "Total gate evaluations by gate name and outcome",
		},
		[]string{"gate", "outcome"},
	)
)

// RecordStep records one step execution.
func RecordStep(adapter, kind string, success bool, duration time.Duration, tokens int) {
	stepsExecuted.WithLabelValues(adapter, kind).Inc()
	if !success {
		stepsFailed.WithLabelValues(adapter, kind).Inc()
	}
	if tokens > 0 {
		tokensUsed.WithLabelValues(adapter).Add(float64(tokens))
	}
	stepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordGate records one gate evaluation outcome.
func RecordGate(gate string, passed bool) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	gateEvaluations.WithLabelValues(gate, outcome).Inc()
}
