package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the learning engine
type Metrics struct {
	// Learning metrics
	TasksRecorded   *prometheus.CounterVec
	FeedbackTotal   *prometheus.CounterVec
	PatternsEmitted *prometheus.CounterVec
	StatesCreated   *prometheus.CounterVec

	// Store metrics
	StateConflicts    *prometheus.CounterVec
	PersistenceErrors *prometheus.CounterVec

	// Operation metrics
	OperationDuration *prometheus.HistogramVec

	// Ingestion metrics
	EventsConsumed *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics.
// Registration happens once per process; later calls return the same set.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			TasksRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_tasks_recorded_total",
					Help: "Total number of task outcomes recorded",
				},
				[]string{"agent_type", "outcome"},
			),
			FeedbackTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_feedback_total",
					Help: "Total number of feedback submissions by rating",
				},
				[]string{"agent_type", "rating", "attributed"},
			),
			PatternsEmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_patterns_emitted_total",
					Help: "Total number of success and anti patterns written to memory",
				},
				[]string{"agent_type", "kind", "source"},
			),
			StatesCreated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_states_created_total",
					Help: "Total number of agent states created on first access",
				},
				[]string{"agent_type"},
			),
			StateConflicts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_state_conflicts_total",
					Help: "Total number of version conflicts on agent state updates",
				},
				[]string{"operation"},
			),
			PersistenceErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_persistence_errors_total",
					Help: "Total number of failed store operations",
				},
				[]string{"operation"},
			),
			OperationDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "learning_operation_duration_seconds",
					Help:    "Learning engine operation duration in seconds",
					Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to 4s
				},
				[]string{"operation", "success"},
			),
			EventsConsumed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "learning_events_consumed_total",
					Help: "Total number of ingested events by subject and disposition",
				},
				[]string{"subject", "disposition"},
			),
		}
	})
	return sharedMetrics
}

// The helpers below are safe on a nil *Metrics so callers can run without a registry.

// RecordTask counts one recorded task outcome.
func (m *Metrics) RecordTask(agentType, outcome string) {
	if m == nil {
		return
	}
	m.TasksRecorded.WithLabelValues(agentType, outcome).Inc()
}

// RecordFeedback counts one feedback submission.
func (m *Metrics) RecordFeedback(agentType string, rating int, attributed bool) {
	if m == nil {
		return
	}
	m.FeedbackTotal.WithLabelValues(agentType, strconv.Itoa(rating), strconv.FormatBool(attributed)).Inc()
}

// RecordPatterns counts n patterns of kind ("success" or "anti") from source.
func (m *Metrics) RecordPatterns(agentType, kind, source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PatternsEmitted.WithLabelValues(agentType, kind, source).Add(float64(n))
}

// RecordStateCreated counts a get-or-create that inserted a fresh state.
func (m *Metrics) RecordStateCreated(agentType string) {
	if m == nil {
		return
	}
	m.StatesCreated.WithLabelValues(agentType).Inc()
}

// RecordConflict counts a version conflict for operation.
func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.StateConflicts.WithLabelValues(operation).Inc()
}

// RecordPersistenceError counts a failed store call for operation.
func (m *Metrics) RecordPersistenceError(operation string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(operation).Inc()
}

// ObserveOperation records how long an engine operation took.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation, strconv.FormatBool(err == nil)).Observe(time.Since(start).Seconds())
}

// RecordEvent counts one consumed event and what happened to it (ack, nak, term).
func (m *Metrics) RecordEvent(subject, disposition string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(subject, disposition).Inc()
}
