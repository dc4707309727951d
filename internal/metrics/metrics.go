// Package metrics holds the Prometheus collectors for agentcore.
//
// Collectors are package-level and auto-registered via promauto on the
// default registry, which the HTTP server exposes on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agentcore"

// Outcome labels shared by the counters below.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeCompleted = "completed"
)

var (
	// TurnsTotal counts finished turns.
	//
	// Labels:
	//   - outcome: "completed", "partial", "failed", "cancelled"
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of agent turns by outcome.",
		},
		[]string{"outcome"},
	)

	// TurnDuration measures wall time per turn.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of agent turns in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// ToolCallsTotal counts tool calls.
	//
	// Labels:
	//   - tool: catalog tool name, or "unknown"
	//   - outcome: "success", "error", "rejected"
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	// RoutingDecisionsTotal counts router decisions.
	RoutingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total model routing decisions by tier and provider.",
		},
		[]string{"tier", "provider"},
	)

	// FaultsTotal counts classified faults.
	FaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Total classified faults by category.",
		},
		[]string{"category"},
	)

	// CheckpointWritesTotal counts checkpoint writes.
	//
	// Labels:
	//   - outcome: "success", "conflict", "error"
	CheckpointWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_writes_total",
			Help:      "Total checkpoint writes by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveTurn records one finished turn.
func ObserveTurn(outcome string, d time.Duration) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnDuration.Observe(d.Seconds())
}

// ObserveToolCall records one tool call.
func ObserveToolCall(tool, outcome string) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveRouting records one routing decision.
func ObserveRouting(tier, provider string) {
	RoutingDecisionsTotal.WithLabelValues(tier, provider).Inc()
}

// ObserveFault records one classified fault.
func ObserveFault(category string) {
	FaultsTotal.WithLabelValues(category).Inc()
}

// ObserveCheckpointWrite records one checkpoint write.
func ObserveCheckpointWrite(outcome string) {
	CheckpointWritesTotal.WithLabelValues(outcome).Inc()
}
