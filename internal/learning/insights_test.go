package learning_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignly/learning-engine/internal/learning"
	"github.com/campaignly/learning-engine/pkg/models"
)

func stateWithOpenRates(rates ...float64) *models.AgentState {
	st := models.NewAgentState("id-1", "org-1", models.AgentEmailMarketer, testNow)
	st.PerformanceHistory = openEntries("email_single", rates...)
	return st
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestGenerateInsights_ShortHistory(t *testing.T) {
	st := stateWithOpenRates(repeat(0.3, 9)...)
	insights := learning.GenerateInsights(st, testNow)
	assert.NotNil(t, insights)
	assert.Empty(t, insights)
}

func TestGenerateInsights_Improvement(t *testing.T) {
	st := stateWithOpenRates(append(repeat(0.2, 20), repeat(0.3, 20)...)...)

	insights := learning.GenerateInsights(st, testNow)
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, models.InsightImprovement, in.Type)
	assert.False(t, in.Actionable)
	assert.Empty(t, in.SuggestedAction)
	assert.InDelta(t, 1.0, in.Confidence, 1e-9)
	assert.Equal(t, testNow, in.GeneratedAt)
	require.Len(t, in.Evidence, 1)
	assert.Equal(t, "open_rate", in.Evidence[0].Metric)
	assert.InDelta(t, 20, in.Evidence[0].Before, 1e-9)
	assert.InDelta(t, 30, in.Evidence[0].After, 1e-9)
	assert.InDelta(t, 50, in.Evidence[0].Improvement, 1e-6)
}

func TestGenerateInsights_Warning(t *testing.T) {
	st := stateWithOpenRates(append(repeat(0.4, 20), repeat(0.2, 20)...)...)

	insights := learning.GenerateInsights(st, testNow)
	require.Len(t, insights, 1)
	assert.Equal(t, models.InsightWarning, insights[0].Type)
	assert.True(t, insights[0].Actionable)
	assert.NotEmpty(t, insights[0].SuggestedAction)
	assert.InDelta(t, -50, insights[0].Evidence[0].Improvement, 1e-6)
}

func TestGenerateInsights_SmallChangeIgnored(t *testing.T) {
	st := stateWithOpenRates(append(repeat(0.20, 20), repeat(0.205, 20)...)...)
	assert.Empty(t, learning.GenerateInsights(st, testNow))
}

func TestGenerateInsights_ShortOlderWindow(t *testing.T) {
	// 23 entries: the older window has 3 samples, which is not enough.
	st := stateWithOpenRates(append(repeat(0.1, 3), repeat(0.3, 20)...)...)
	assert.Empty(t, learning.GenerateInsights(st, testNow))

	// 24 entries: 4 older samples.
	st = stateWithOpenRates(append(repeat(0.1, 4), repeat(0.3, 20)...)...)
	insights := learning.GenerateInsights(st, testNow)
	require.Len(t, insights, 1)
	assert.InDelta(t, 200, insights[0].Evidence[0].Improvement, 1e-6)
}

func TestGenerateInsights_TopTaskTypes(t *testing.T) {
	st := stateWithOpenRates(repeat(0.2, 10)...)
	st.Memory.TaskLearnings = map[string]*models.TaskTypeLearning{
		"email_single": {TaskType: "email_single", TotalTasks: 10, AveragePerformanceScore: 25},
		"newsletter":   {TaskType: "newsletter", TotalTasks: 6, AveragePerformanceScore: 40},
		"promo":        {TaskType: "promo", TotalTasks: 5, AveragePerformanceScore: 30},
		"drip":         {TaskType: "drip", TotalTasks: 9, AveragePerformanceScore: 10},
		"rare":         {TaskType: "rare", TotalTasks: 4, AveragePerformanceScore: 90},
	}

	insights := learning.GenerateInsights(st, testNow)
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, models.InsightPattern, in.Type)
	assert.True(t, in.Actionable)
	require.Len(t, in.Evidence, 3)
	assert.Equal(t, "newsletter", in.Evidence[0].Metric)
	assert.Equal(t, "promo", in.Evidence[1].Metric)
	assert.Equal(t, "email_single", in.Evidence[2].Metric)
	assert.Contains(t, in.SuggestedAction, "newsletter")
}

func TestGenerateInsights_EngineFreshAgent(t *testing.T) {
	e, _ := newTestEngine(t)
	insights, err := e.GenerateInsights(context.Background(), "org-1", models.AgentAdManager)
	require.NoError(t, err)
	assert.Empty(t, insights)
}
