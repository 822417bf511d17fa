// Package metrics provides Prometheus collectors for the ingestion and
// optimization pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "costpilot"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// DocumentsTotal counts documents that finished extraction.
	// Labels: result (success, error)
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "documents_total",
			Help:      "Total number of documents processed by the extraction pool",
		},
		[]string{"result"},
	)

	// ExtractionDuration tracks how long one extraction call takes.
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "call_duration_seconds",
			Help:      "Duration of document extraction calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	// OutstandingDocuments is the number of submitted documents not yet done.
	OutstandingDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "outstanding_documents",
			Help:      "Documents queued or processing across all batches",
		},
	)

	// AnalysisCallsTotal counts pattern-analysis calls.
	// Labels: op (analyze_spending, detect_subscriptions), result (success, error)
	AnalysisCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "calls_total",
			Help:      "Total number of pattern-analysis calls",
		},
		[]string{"op", "result"},
	)

	// RecurringDetectedTotal counts recurring-cost records written by audits.
	RecurringDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "recurring_detected_total",
			Help:      "Recurring-cost records appended or merged by audit runs",
		},
	)

	// Recommendations is the size of the current working set.
	Recommendations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "working_set_size",
			Help:      "Number of recommendations in the working set",
		},
	)

	// TasksTotal counts optimization task transitions.
	// Labels: status (in-progress, completed, failed)
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "tasks_total",
			Help:      "Optimization tasks entering each status",
		},
		[]string{"status"},
	)

	// PendingTriggers is the number of completion triggers in flight.
	PendingTriggers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimize",
			Name:      "pending_triggers",
			Help:      "Completion triggers scheduled but not yet fired",
		},
	)
)

// ResultLabel maps an error to a result label value.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
