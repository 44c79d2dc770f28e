package learning_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignly/learning-engine/internal/learning"
	"github.com/campaignly/learning-engine/pkg/models"
)

func openEntries(taskType string, rates ...float64) []models.PerformanceEntry {
	out := make([]models.PerformanceEntry, len(rates))
	for i, r := range rates {
		out[i] = models.PerformanceEntry{
			TaskID:   fmt.Sprintf("%s-%d", taskType, i),
			TaskType: taskType,
			Metrics:  models.PerformanceMetrics{OpenRate: models.Rate(r)},
		}
	}
	return out
}

func TestIdentifyPatterns_HighPerformers(t *testing.T) {
	// avg 0.22, threshold 0.264: three entries at 0.5 qualify.
	history := openEntries("email_single", 0.1, 0.1, 0.5, 0.1, 0.1, 0.5, 0.1, 0.1, 0.5, 0.1)

	set := learning.IdentifyPatterns(history, "email_single", testNow)
	require.Len(t, set.Success, 1)
	assert.Empty(t, set.Anti)

	p := set.Success[0]
	assert.Equal(t, "High performing email_single content", p.Pattern)
	assert.Equal(t, 15.0, p.PerformanceBoost)
	assert.Equal(t, 3, p.UsageCount)
	assert.Equal(t, []string{"email_single"}, p.TaskTypes)
	assert.Equal(t, testNow, p.LastUsed)
	assert.NotEmpty(t, p.ID)
}

func TestIdentifyPatterns_TooFewHighPerformers(t *testing.T) {
	history := openEntries("email_single", 0.1, 0.1, 0.5, 0.1, 0.1, 0.5, 0.1, 0.1, 0.1, 0.1)
	set := learning.IdentifyPatterns(history, "email_single", testNow)
	assert.Empty(t, set.Success)
}

func TestIdentifyPatterns_OnlyRecentEntriesOfType(t *testing.T) {
	// The old high performers fall outside the last 10 email_single entries.
	history := openEntries("email_single", 0.9, 0.9, 0.9)
	history = append(history, openEntries("email_single", 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2)...)
	history = append(history, openEntries("blog_post", 0.9, 0.1, 0.9, 0.1, 0.9)...)

	assert.Empty(t, learning.IdentifyPatterns(history, "email_single", testNow).Success)
	assert.Empty(t, learning.IdentifyPatterns(history, "landing_page", testNow).Success)
}

func TestIdentifyPatterns_ClickRateOnly(t *testing.T) {
	var history []models.PerformanceEntry
	for i, r := range []float64{0.01, 0.01, 0.01, 0.01, 0.08, 0.08, 0.08} {
		history = append(history, models.PerformanceEntry{
			TaskID:   fmt.Sprintf("c-%d", i),
			TaskType: "ad_copy",
			Metrics:  models.PerformanceMetrics{ClickRate: models.Rate(r)},
		})
	}
	set := learning.IdentifyPatterns(history, "ad_copy", testNow)
	require.Len(t, set.Success, 1)
	assert.Equal(t, 3, set.Success[0].UsageCount)
}

func TestMergeSuccessPatterns_Dedup(t *testing.T) {
	existing := []models.SuccessPattern{
		{ID: "a", Pattern: "A"},
		{ID: "x", Pattern: "X", UsageCount: 3},
		{ID: "b", Pattern: "B"},
	}
	merged := learning.MergeSuccessPatterns(existing, []models.SuccessPattern{{ID: "new", Pattern: "X", UsageCount: 7}})
	merged = learning.MergeSuccessPatterns(merged, []models.SuccessPattern{{ID: "newer", Pattern: "X", UsageCount: 9}})

	require.Len(t, merged, 3)
	assert.Equal(t, "X", merged[1].Pattern)
	assert.Equal(t, 9, merged[1].UsageCount, "latest values win")
	assert.Equal(t, "x", merged[1].ID, "identity of the merged pattern is kept")

	merged = learning.MergeSuccessPatterns(merged, []models.SuccessPattern{{ID: "c", Pattern: "C"}})
	require.Len(t, merged, 4)
	assert.Equal(t, "C", merged[3].Pattern)
}

func TestMergePatterns_Cap(t *testing.T) {
	var success []models.SuccessPattern
	var anti []models.AntiPattern
	for i := 0; i < 25; i++ {
		success = learning.MergeSuccessPatterns(success, []models.SuccessPattern{{Pattern: fmt.Sprintf("p%d", i)}})
		anti = learning.MergeAntiPatterns(anti, []models.AntiPattern{{Pattern: fmt.Sprintf("p%d", i)}})
	}
	require.Len(t, success, models.MaxPatterns)
	require.Len(t, anti, models.MaxPatterns)
	assert.Equal(t, "p5", success[0].Pattern)
	assert.Equal(t, "p24", anti[19].Pattern)
}
