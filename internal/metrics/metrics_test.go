package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_Shared(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	assert.Same(t, a, b, "metrics should be registered once per process")
}

func TestHelpers_Count(t *testing.T) {
	m := NewMetrics()

	before := testutil.ToFloat64(m.TasksRecorded.WithLabelValues("analyst", "success"))
	m.RecordTask("analyst", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(m.TasksRecorded.WithLabelValues("analyst", "success")))

	before = testutil.ToFloat64(m.PatternsEmitted.WithLabelValues("analyst", "success", "performance"))
	m.RecordPatterns("analyst", "success", "performance", 2)
	m.RecordPatterns("analyst", "success", "performance", 0)
	assert.Equal(t, before+2, testutil.ToFloat64(m.PatternsEmitted.WithLabelValues("analyst", "success", "performance")))

	before = testutil.ToFloat64(m.FeedbackTotal.WithLabelValues("analyst", "5", "true"))
	m.RecordFeedback("analyst", 5, true)
	assert.Equal(t, before+1, testutil.ToFloat64(m.FeedbackTotal.WithLabelValues("analyst", "5", "true")))
}

func TestHelpers_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTask("analyst", "success")
		m.RecordFeedback("analyst", 1, false)
		m.RecordPatterns("analyst", "anti", "feedback", 1)
		m.RecordStateCreated("analyst")
		m.RecordConflict("record")
		m.RecordPersistenceError("update")
		m.ObserveOperation("record", time.Now(), errors.New("boom"))
		m.RecordEvent("learning.feedback", "ack")
	})
}
