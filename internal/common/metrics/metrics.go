// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CasesAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseworker_cases_analyzed_total",
			Help: "Total number of cases scored, by risk level",
		},
		[]string{"risk_level"},
	)

	ExplanationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseworker_explanations_total",
			Help: "Total number of explanations rendered, by source",
		},
		[]string{"source"},
	)

	TextGenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseworker_text_generation_failures_total",
			Help: "Total number of text generation calls that fell back to the template",
		},
		[]string{"provider"},
	)

	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseworker_approvals_total",
			Help: "Total number of officer decisions recorded",
		},
		[]string{"decision", "alignment"},
	)

	WorkflowConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseworker_workflow_conflicts_total",
			Help: "Total number of rejected approval attempts",
		},
		[]string{"reason"},
	)

	PendingApprovals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caseworker_pending_approvals",
			Help: "Number of cases awaiting an officer decision at last count",
		},
	)

	AuditSinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseworker_audit_sink_failures_total",
			Help: "Total number of approval records a sink failed to accept",
		},
		[]string{"sink"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseworker_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
