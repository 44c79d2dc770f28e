package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignly/learning-engine/pkg/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParseAgentType(t *testing.T) {
	for _, at := range models.AllAgentTypes() {
		got, err := models.ParseAgentType(string(at))
		require.NoError(t, err)
		assert.Equal(t, at, got)
	}

	_, err := models.ParseAgentType("janitor")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "agent_type", ve.Field)
}

func TestNewAgentState_Defaults(t *testing.T) {
	st := models.NewAgentState("id-1", "org-1", models.AgentContentWriter, now)

	require.NoError(t, st.Validate())
	assert.Equal(t, []string{"professional", "friendly"}, st.LearnedPreferences.ContentStyle.PreferredTone)
	assert.Equal(t, 6, st.LearnedPreferences.ContentStyle.FormalityLevel)
	assert.False(t, st.LearnedPreferences.ContentStyle.UseEmojis)
	assert.NotNil(t, st.PerformanceHistory)
	assert.NotNil(t, st.Memory.TaskLearnings)
}

func TestAgentState_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.AgentState)
		field  string
	}{
		{"missing org", func(s *models.AgentState) { s.OrganizationID = "" }, "organization_id"},
		{"bad agent type", func(s *models.AgentState) { s.AgentType = "x" }, "agent_type"},
		{"history over cap", func(s *models.AgentState) {
			s.PerformanceHistory = make([]models.PerformanceEntry, models.MaxPerformanceHistory+1)
		}, "performance_history"},
		{"interactions over cap", func(s *models.AgentState) {
			s.Memory.RecentInteractions = make([]models.InteractionSummary, models.MaxRecentInteractions+1)
		}, "memory.recent_interactions"},
		{"patterns over cap", func(s *models.AgentState) {
			s.Memory.SuccessPatterns = make([]models.SuccessPattern, models.MaxPatterns+1)
		}, "memory.success_patterns"},
		{"counters out of order", func(s *models.AgentState) {
			s.Memory.TaskLearnings["x"] = &models.TaskTypeLearning{TotalTasks: 1, SuccessfulTasks: 2}
		}, "memory.task_learnings.x"},
		{"formality out of range", func(s *models.AgentState) {
			s.LearnedPreferences.ContentStyle.FormalityLevel = 11
		}, "learned_preferences.content_style.formality_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := models.NewAgentState("id-1", "org-1", models.AgentAnalyst, now)
			tt.mutate(st)
			var ve *models.ValidationError
			require.ErrorAs(t, st.Validate(), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPerformanceMetrics_Validate(t *testing.T) {
	assert.NoError(t, models.PerformanceMetrics{}.Validate())
	assert.NoError(t, models.PerformanceMetrics{OpenRate: models.Rate(0), ClickRate: models.Rate(1)}.Validate())
	assert.Error(t, models.PerformanceMetrics{ConversionRate: models.Rate(-0.1)}.Validate())
	assert.Error(t, models.PerformanceMetrics{ApprovalRate: models.Rate(1.01)}.Validate())
	assert.Error(t, models.PerformanceMetrics{RevisionCount: models.Count(-1)}.Validate())
}

func TestAgentState_CloneIsDeep(t *testing.T) {
	st := models.NewAgentState("id-1", "org-1", models.AgentEmailMarketer, now)
	st.PerformanceHistory = append(st.PerformanceHistory, models.PerformanceEntry{
		TaskID:  "t1",
		Metrics: models.PerformanceMetrics{OpenRate: models.Rate(0.3)},
	})
	st.Memory.TaskLearnings["email_single"] = &models.TaskTypeLearning{TaskType: "email_single", TotalTasks: 1}
	st.Memory.SuccessPatterns = append(st.Memory.SuccessPatterns, models.SuccessPattern{TaskTypes: []string{"email_single"}})
	st.LearnedPreferences.ProductPreferences["p1"] = models.ProductPreference{EffectiveValueProps: []string{"Fast"}}

	c := st.Clone()
	require.Equal(t, st, c)

	*c.PerformanceHistory[0].Metrics.OpenRate = 0.9
	c.Memory.TaskLearnings["email_single"].TotalTasks = 7
	c.Memory.SuccessPatterns[0].TaskTypes[0] = "other"
	c.LearnedPreferences.ContentStyle.PreferredTone[0] = "casual"
	c.LearnedPreferences.ProductPreferences["p1"].EffectiveValueProps[0] = "Slow"

	assert.InDelta(t, 0.3, *st.PerformanceHistory[0].Metrics.OpenRate, 1e-9)
	assert.Equal(t, 1, st.Memory.TaskLearnings["email_single"].TotalTasks)
	assert.Equal(t, "email_single", st.Memory.SuccessPatterns[0].TaskTypes[0])
	assert.Equal(t, "professional", st.LearnedPreferences.ContentStyle.PreferredTone[0])
	assert.Equal(t, "Fast", st.LearnedPreferences.ProductPreferences["p1"].EffectiveValueProps[0])
}

func TestNormalize_FillsNilCollections(t *testing.T) {
	st := &models.AgentState{OrganizationID: "org-1", AgentType: models.AgentAnalyst}
	st.Normalize()

	assert.NotNil(t, st.PerformanceHistory)
	assert.NotNil(t, st.Memory.TaskLearnings)
	assert.NotNil(t, st.Memory.RecentInteractions)
	assert.NotNil(t, st.Memory.SuccessPatterns)
	assert.NotNil(t, st.Memory.AntiPatterns)
	assert.NotNil(t, st.LearnedPreferences.ProductPreferences)
}

func TestPatternScope(t *testing.T) {
	global := models.SuccessPattern{}
	scoped := models.AntiPattern{TaskTypes: []string{"email_single"}}

	assert.True(t, global.AppliesTo("anything"))
	assert.True(t, scoped.AppliesTo("email_single"))
	assert.False(t, scoped.AppliesTo("blog_post"))
}

func TestTaskTypeLearning_SuccessRate(t *testing.T) {
	var nilLearning *models.TaskTypeLearning
	assert.Zero(t, nilLearning.SuccessRate())
	assert.Zero(t, (&models.TaskTypeLearning{}).SuccessRate())
	assert.InDelta(t, 0.25, (&models.TaskTypeLearning{TotalTasks: 4, SuccessfulTasks: 1}).SuccessRate(), 1e-9)
}

func TestRequestValidation(t *testing.T) {
	ok := models.TaskPerformance{OrganizationID: "org-1", AgentType: models.AgentAnalyst, TaskID: "t", TaskType: "report"}
	assert.NoError(t, ok.Validate())

	noTask := ok
	noTask.TaskID = ""
	assert.Error(t, noTask.Validate())

	assert.Error(t, models.Feedback{TaskID: "t", Rating: 0}.Validate())
	assert.Error(t, models.Feedback{TaskID: "t", Rating: 6}.Validate())
	assert.NoError(t, models.Feedback{TaskID: "t", Rating: 3}.Validate())

	assert.Error(t, models.PreferencesPatch{ContentStyle: &models.ContentStyle{FormalityLevel: -1}}.Validate())
	assert.Error(t, models.ValidateKey("", models.AgentAnalyst))
}
