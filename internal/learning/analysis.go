package learning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/campaignly/learning-engine/pkg/models"
)

const (
	minHealthSample  = 10
	trendWindow      = 10
	weakSuccessRatio = 0.5
)

// countsAsSuccess is the aggregate success rule used for dashboard health.
// It is looser than ClassifyOutcome and deliberately kept separate.
func countsAsSuccess(m models.PerformanceMetrics) bool {
	return (m.OpenRate != nil && *m.OpenRate > 0.15) ||
		(m.ClickRate != nil && *m.ClickRate > 0.02) ||
		(m.ApprovalRate != nil && *m.ApprovalRate > 0.8)
}

// ClassifyHealth maps task volume and success rate (percent) to a health level.
// Fewer than 10 tasks is never enough to call an agent healthy.
func ClassifyHealth(totalTasks int, successRate float64) models.Health {
	switch {
	case totalTasks < minHealthSample:
		return models.HealthNeedsAttention
	case successRate >= 80:
		return models.HealthExcellent
	case successRate >= 60:
		return models.HealthGood
	case successRate >= 40:
		return models.HealthNeedsAttention
	default:
		return models.HealthPoor
	}
}

// AnalyzeState computes the dashboard analysis for one agent.
// Empty state yields zeroed figures, never an error.
func AnalyzeState(state *models.AgentState, now time.Time) models.AgentAnalysis {
	history := state.PerformanceHistory
	total := len(history)

	var successful int
	for _, e := range history {
		if countsAsSuccess(e.Metrics) {
			successful++
		}
	}
	var successRate float64
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
	}

	learnings := make([]*models.TaskTypeLearning, 0, len(state.Memory.TaskLearnings))
	for _, l := range state.Memory.TaskLearnings {
		if l != nil {
			learnings = append(learnings, l)
		}
	}

	var avgScore float64
	if len(learnings) > 0 {
		for _, l := range learnings {
			avgScore += l.AveragePerformanceScore
		}
		avgScore /= float64(len(learnings))
	}

	top := []string{}
	for _, l := range rankByScore(learnings, topTaskTypes) {
		top = append(top, l.TaskType)
	}

	sort.Slice(learnings, func(i, j int) bool { return learnings[i].TaskType < learnings[j].TaskType })
	areas := []string{}
	for _, l := range learnings {
		if l.TotalTasks > 0 && l.SuccessRate() < weakSuccessRatio {
			areas = append(areas, fmt.Sprintf("%s content (%.0f%% success rate)", l.TaskType, l.SuccessRate()*100))
		}
	}

	return models.AgentAnalysis{
		OverallHealth:           ClassifyHealth(total, successRate),
		TotalTasksProcessed:     total,
		SuccessRate:             successRate,
		AveragePerformanceScore: avgScore,
		TopPerformingTaskTypes:  top,
		AreasForImprovement:     areas,
		RecentInsights:          GenerateInsights(state, now),
		Trends:                  Trends(history),
	}
}

// Trends compares the last 10 entries with the 10 before them for each
// tracked rate. Nothing is reported until there are 20 entries.
func Trends(history []models.PerformanceEntry) []models.Trend {
	trends := []models.Trend{}
	if len(history) < 2*trendWindow {
		return trends
	}

	recent, older := windows(history, trendWindow)
	for _, m := range trackedMetrics {
		r := samplesOf(recent, m.value)
		o := samplesOf(older, m.value)
		if len(r) <= minWindowSamples || len(o) <= minWindowSamples {
			continue
		}
		ra, _ := mean(r)
		oa, _ := mean(o)
		change, ok := percentChange(oa, ra)
		if !ok {
			continue
		}

		dir := models.TrendStable
		switch {
		case change > significantChangePct:
			dir = models.TrendImproving
		case change < -significantChangePct:
			dir = models.TrendDeclining
		}
		trends = append(trends, models.Trend{Metric: m.key, Direction: dir, Change: change})
	}
	return trends
}

// GetAgentAnalysis loads (or creates) the agent's state and analyzes it.
func (e *Engine) GetAgentAnalysis(ctx context.Context, orgID string, agentType models.AgentType) (analysis *models.AgentAnalysis, err error) {
	const op = "get_agent_analysis"
	ctx, end := e.startOp(ctx, op, orgID, agentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(orgID, agentType); err != nil {
		return nil, err
	}
	st, err := e.getOrCreate(ctx, orgID, agentType)
	if err != nil {
		return nil, err
	}
	out := AnalyzeState(st, e.now())
	return &out, nil
}
