// Package telemetry provides Prometheus metrics for routing observability.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts routing decisions.
	// Labels: workflow, source (baseline, learned, override)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routed",
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Total number of routing decisions by workflow and decision source",
		},
		[]string{"workflow", "source"},
	)

	// RoutingDuration tracks end-to-end routing latency.
	RoutingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "routed",
			Subsystem: "engine",
			Name:      "routing_duration_seconds",
			Help:      "Duration of routing calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// OutcomesTotal counts reported task outcomes.
	// Labels: result (success, failure)
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routed",
			Subsystem: "engine",
			Name:      "outcomes_total",
			Help:      "Total number of reported task outcomes",
		},
		[]string{"result"},
	)

	// CorruptRecordsSkipped counts outcome log lines skipped during reads.
	CorruptRecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "routed",
			Subsystem: "store",
			Name:      "corrupt_records_skipped_total",
			Help:      "Total number of corrupt outcome log records skipped across all reads",
		},
	)

	// AggregationRuns counts aggregator executions.
	// Labels: outcome (committed, rejected, unchanged, error)
	AggregationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routed",
			Subsystem: "aggregate",
			Name:      "runs_total",
			Help:      "Total number of aggregation runs by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveRuleVersion exposes the numeric part of the active rule version,
	// 0 while the built-in default is active.
	ActiveRuleVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "routed",
			Subsystem: "rules",
			Name:      "active_version",
			Help:      "Numeric component of the active scoring rule version (0 for built-in)",
		},
	)
)

// RecordDecision records one routing decision.
func RecordDecision(workflow, source string, elapsed time.Duration) {
	DecisionsTotal.WithLabelValues(workflow, source).Inc()
	RoutingDuration.Observe(elapsed.Seconds())
}

// RecordOutcome records one reported outcome.
func RecordOutcome(success bool) {
	if success {
		OutcomesTotal.WithLabelValues("success").Inc()
	} else {
		OutcomesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordAggregation records one aggregator run by its outcome.
func RecordAggregation(outcome string) {
	AggregationRuns.WithLabelValues(outcome).Inc()
}
