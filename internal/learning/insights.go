package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campaignly/learning-engine/pkg/models"
)

const (
	minInsightHistory     = 10
	insightWindow         = 20
	minWindowSamples      = 3 // a window needs strictly more samples than this
	significantChangePct  = 5.0
	minTasksForTopPattern = 5
	topTaskTypes          = 3
	topPatternConfidence  = 0.8
)

// trackedMetric is a rate compared across history windows.
type trackedMetric struct {
	key    string
	label  string
	value  metricFunc
	advice string
}

var trackedMetrics = []trackedMetric{
	{
		key:    "open_rate",
		label:  "Open rate",
		value:  openRate,
		advice: "Test new subject lines and preview text to recover open rate",
	},
	{
		key:    "click_rate",
		label:  "Click rate",
		value:  clickRate,
		advice: "Strengthen calls to action and link placement to recover click rate",
	},
}

// GenerateInsights derives trend and top-performer insights from state.
// Fewer than 10 history entries yields no insights.
func GenerateInsights(state *models.AgentState, now time.Time) []models.LearningInsight {
	insights := []models.LearningInsight{}
	history := state.PerformanceHistory
	if len(history) < minInsightHistory {
		return insights
	}

	recent, older := windows(history, insightWindow)
	for _, m := range trackedMetrics {
		r := samplesOf(recent, m.value)
		o := samplesOf(older, m.value)
		if len(r) <= minWindowSamples || len(o) <= minWindowSamples {
			continue
		}
		ra, _ := mean(r)
		oa, _ := mean(o)
		change, ok := percentChange(oa, ra)
		if !ok || math.Abs(change) <= significantChangePct {
			continue
		}

		in := models.LearningInsight{
			ID:          uuid.NewString(),
			Evidence:    []models.Evidence{{Metric: m.key, Before: oa * 100, After: ra * 100, Improvement: change}},
			Actionable:  change < 0,
			Confidence:  math.Min(float64(len(r))/10, 1),
			GeneratedAt: now,
		}
		if change > 0 {
			in.Type = models.InsightImprovement
			in.Title = m.label + " improving"
			in.Description = fmt.Sprintf("%s rose %.1f%% over the last %d tasks (%.1f%% vs %.1f%%)", m.label, change, len(recent), ra*100, oa*100)
		} else {
			in.Type = models.InsightWarning
			in.Title = m.label + " declining"
			in.Description = fmt.Sprintf("%s fell %.1f%% over the last %d tasks (%.1f%% vs %.1f%%)", m.label, -change, len(recent), ra*100, oa*100)
			in.SuggestedAction = m.advice
		}
		insights = append(insights, in)
	}

	var eligible []*models.TaskTypeLearning
	for _, l := range state.Memory.TaskLearnings {
		if l != nil && l.TotalTasks >= minTasksForTopPattern {
			eligible = append(eligible, l)
		}
	}
	top := rankByScore(eligible, topTaskTypes)
	if len(top) > 0 {
		names := make([]string, len(top))
		evidence := make([]models.Evidence, len(top))
		for i, l := range top {
			names[i] = l.TaskType
			evidence[i] = models.Evidence{Metric: l.TaskType, After: l.AveragePerformanceScore}
		}
		insights = append(insights, models.LearningInsight{
			ID:              uuid.NewString(),
			Type:            models.InsightPattern,
			Title:           "Top performing task types",
			Description:     "Highest average performance: " + strings.Join(names, ", "),
			Evidence:        evidence,
			Actionable:      true,
			SuggestedAction: fmt.Sprintf("Prioritize %s tasks, which perform best for this agent", top[0].TaskType),
			Confidence:      topPatternConfidence,
			GeneratedAt:     now,
		})
	}
	return insights
}

// GenerateInsights loads (or creates) the agent's state and derives its insights.
func (e *Engine) GenerateInsights(ctx context.Context, orgID string, agentType models.AgentType) (insights []models.LearningInsight, err error) {
	const op = "generate_insights"
	ctx, end := e.startOp(ctx, op, orgID, agentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(orgID, agentType); err != nil {
		return nil, err
	}
	st, err := e.getOrCreate(ctx, orgID, agentType)
	if err != nil {
		return nil, err
	}
	return GenerateInsights(st, e.now()), nil
}

// windows splits off the last size entries and the size entries before them.
// Either may be shorter than size, or empty.
func windows(history []models.PerformanceEntry, size int) (recent, older []models.PerformanceEntry) {
	n := len(history)
	recentStart := max(0, n-size)
	olderStart := max(0, n-2*size)
	return history[recentStart:], history[olderStart:recentStart]
}

// percentChange is (after-before)/before in percent. Undefined for a zero baseline.
func percentChange(before, after float64) (float64, bool) {
	if before == 0 {
		return 0, false
	}
	return (after - before) / before * 100, true
}

// rankByScore orders learnings by average score, best first, and keeps n.
// Ties fall back to task type name so output is stable.
func rankByScore(learnings []*models.TaskTypeLearning, n int) []*models.TaskTypeLearning {
	sorted := append([]*models.TaskTypeLearning(nil), learnings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AveragePerformanceScore != sorted[j].AveragePerformanceScore {
			return sorted[i].AveragePerformanceScore > sorted[j].AveragePerformanceScore
		}
		return sorted[i].TaskType < sorted[j].TaskType
	})
	return head(sorted, n)
}
