// Package metrics provides Prometheus metrics for the Fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DedupRunsTotal tracks dedup runs by outcome
	DedupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dedup",
			Name:      "runs_total",
			Help:      "Total number of dedup runs by outcome",
		},
		[]string{"tenant_id", "status"},
	)

	// DedupRunDuration tracks dedup run duration in seconds
	DedupRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "dedup",
			Name:      "run_duration_seconds",
			Help:      "Duration of dedup runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tenant_id"},
	)

	// FactsSuppressedTotal tracks facts suppressed by dedup runs
	FactsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dedup",
			Name:      "facts_suppressed_total",
			Help:      "Total number of facts suppressed by dedup runs",
		},
		[]string{"tenant_id"},
	)

	// GroupBuildDuration tracks soft-grouping passes on list reads
	GroupBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "grouping",
			Name:      "build_duration_seconds",
			Help:      "Duration of similarity group building in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// ResolutionsDegradedTotal tracks group expansions that fell back to
	// representative-only after a failed member fetch
	ResolutionsDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "degraded_groups_total",
			Help:      "Total number of groups degraded to representative-only during resolution",
		},
	)

	// TrustGateDecisions tracks trust gate outcomes
	TrustGateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "trust",
			Name:      "gate_decisions_total",
			Help:      "Total number of trust gate decisions by outcome",
		},
		[]string{"decision"},
	)

	// SynthesisRequestsTotal tracks synthesis dispatches by mode and outcome
	SynthesisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "synthesis",
			Name:      "requests_total",
			Help:      "Total number of synthesis requests by mode and status",
		},
		[]string{"mode", "status"},
	)

	// SynthesisDuration tracks end-to-end generation latency
	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "synthesis",
			Name:      "request_duration_seconds",
			Help:      "Duration of text-generation requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)
)
