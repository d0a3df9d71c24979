package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels for intake pipeline metrics
	intakeLabels  = []string{"funnel_id"}
	outcomeLabels = []string{"funnel_id", "outcome"}

	// SubmissionsReceivedTotal counts every submission entering the pipeline.
	SubmissionsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_submissions_received_total",
			Help: "Total number of submissions received by the intake pipeline.",
		},
		intakeLabels,
	)

	// SubmissionsOutcomeTotal counts pipeline outcomes: accepted, quarantined,
	// blocked, rate_limited, validation_failed, duplicate, error.
	SubmissionsOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_submissions_outcome_total",
			Help: "Total number of submissions per pipeline outcome.",
		},
		outcomeLabels,
	)

	// ClassificationConfidence observes the classifier's summed confidence.
	ClassificationConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_intake_classification_confidence",
			Help:    "Histogram of classifier confidence scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		},
		intakeLabels,
	)

	// RateLimitDeniedTotal counts limiter denials per window kind.
	RateLimitDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_rate_limit_denied_total",
			Help: "Total number of submissions denied by the rate limiter.",
		},
		[]string{"window"},
	)

	// AssignmentsTotal counts assignment engine results: matched, unassigned, conflict.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_assignments_total",
			Help: "Total number of assignment attempts per result.",
		},
		[]string{"funnel_id", "result"},
	)

	// AssignmentDurationSeconds observes time spent matching and claiming.
	AssignmentDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_intake_assignment_duration_seconds",
			Help:    "Histogram of assignment engine durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		intakeLabels,
	)

	// DbOperationDurationSeconds observes repository call durations.
	DbOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_intake_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"operation", "entity", "status"},
	)

	// EventsPublishedTotal counts publisher attempts per subject and status.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_events_published_total",
			Help: "Total number of NATS event publish attempts.",
		},
		[]string{"subject", "status"},
	)

	// AssignmentQueueLength gauges the async assignment pool backlog.
	AssignmentQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lead_intake_assignment_queue_length",
		Help: "Current number of tasks waiting in the assignment worker pool.",
	})
)

// IncSubmissionReceived records one inbound submission.
func IncSubmissionReceived(funnelID string) {
	SubmissionsReceivedTotal.WithLabelValues(orUnknown(funnelID)).Inc()
}

// IncSubmissionOutcome records the pipeline's outcome for one submission.
func IncSubmissionOutcome(funnelID, outcome string) {
	SubmissionsOutcomeTotal.WithLabelValues(orUnknown(funnelID), outcome).Inc()
}

// ObserveClassificationConfidence records a classifier score.
func ObserveClassificationConfidence(funnelID string, confidence float64) {
	ClassificationConfidence.WithLabelValues(orUnknown(funnelID)).Observe(confidence)
}

// IncRateLimitDenied records one limiter denial for the given window kind.
func IncRateLimitDenied(window string) {
	RateLimitDeniedTotal.WithLabelValues(window).Inc()
}

// IncAssignment records one assignment engine result.
func IncAssignment(funnelID, result string) {
	AssignmentsTotal.WithLabelValues(orUnknown(funnelID), result).Inc()
}

// ObserveAssignmentDuration records how long an assignment attempt took.
func ObserveAssignmentDuration(funnelID string, d time.Duration) {
	AssignmentDurationSeconds.WithLabelValues(orUnknown(funnelID)).Observe(d.Seconds())
}

// ObserveDbOperationDuration records one repository call.
func ObserveDbOperationDuration(operation, entity string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DbOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(d.Seconds())
}

// IncEventPublished records one publish attempt.
func IncEventPublished(subject string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(subject, status).Inc()
}

// SetAssignmentQueueLength updates the worker pool backlog gauge.
func SetAssignmentQueueLength(n int) {
	AssignmentQueueLength.Set(float64(n))
}

func orUnknown(funnelID string) string {
	if funnelID == "" {
		return "unknown"
	}
	return funnelID
}
