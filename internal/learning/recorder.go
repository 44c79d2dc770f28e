package learning

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/pkg/models"
)

// Score weights per observed metric.
const (
	openRateWeight       = 100
	clickRateWeight      = 200
	conversionRateWeight = 300
	approvalRateWeight   = 100
)

// ClassifyOutcome maps one task's metrics to an outcome.
// Rules are checked in order and the first match wins.
func ClassifyOutcome(m models.PerformanceMetrics) models.Outcome {
	switch {
	case m.ApprovalRate != nil && *m.ApprovalRate >= 0.8:
		return models.OutcomeSuccess
	case m.OpenRate != nil && *m.OpenRate > 0.2:
		return models.OutcomeSuccess
	case m.ClickRate != nil && *m.ClickRate > 0.03:
		return models.OutcomeSuccess
	case m.ConversionRate != nil && *m.ConversionRate > 0.01:
		return models.OutcomeSuccess
	case m.RevisionCount != nil && *m.RevisionCount > 2:
		return models.OutcomeFailure
	default:
		return models.OutcomePending
	}
}

// PerformanceScore is the mean weighted value over every present metric
// observation in entries. Absent metrics are not counted. Returns 0 when
// nothing was observed.
func PerformanceScore(entries []models.PerformanceEntry) float64 {
	var sum float64
	var n int
	add := func(v *float64, weight float64) {
		if v != nil {
			sum += *v * weight
			n++
		}
	}
	for _, e := range entries {
		add(e.Metrics.OpenRate, openRateWeight)
		add(e.Metrics.ClickRate, clickRateWeight)
		add(e.Metrics.ConversionRate, conversionRateWeight)
		add(e.Metrics.ApprovalRate, approvalRateWeight)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ApplyTaskPerformance folds a completed task into state in place: history,
// recent interactions, the task type rollup and mined success patterns.
func ApplyTaskPerformance(state *models.AgentState, task models.TaskPerformance, now time.Time) models.RecordResult {
	state.Normalize()
	outcome := ClassifyOutcome(task.Metrics)

	state.PerformanceHistory = performanceHistory.Push(state.PerformanceHistory, models.PerformanceEntry{
		Timestamp: now,
		TaskID:    task.TaskID,
		TaskType:  task.TaskType,
		Metrics:   task.Metrics.Clone(),
	})

	state.Memory.RecentInteractions = recentInteractions.Push(state.Memory.RecentInteractions, models.InteractionSummary{
		Timestamp:          now,
		TaskID:             task.TaskID,
		TaskType:           task.TaskType,
		ContentSummary:     task.ContentSummary,
		Outcome:            outcome,
		PerformanceMetrics: task.Metrics.Clone(),
	})

	l, ok := state.Memory.TaskLearnings[task.TaskType]
	if !ok {
		l = &models.TaskTypeLearning{
			TaskType:                 task.TaskType,
			BestPerformingApproaches: []string{},
			CommonIssues:             []string{},
		}
		state.Memory.TaskLearnings[task.TaskType] = l
	}
	l.TotalTasks++
	if outcome == models.OutcomeSuccess {
		l.SuccessfulTasks++
	}
	l.AveragePerformanceScore = PerformanceScore(entriesOfType(state.PerformanceHistory, task.TaskType))
	l.LastUpdated = now

	found := IdentifyPatterns(state.PerformanceHistory, task.TaskType, now)
	state.Memory.SuccessPatterns = MergeSuccessPatterns(state.Memory.SuccessPatterns, found.Success)
	state.Memory.AntiPatterns = MergeAntiPatterns(state.Memory.AntiPatterns, found.Anti)

	snapshot := *l
	snapshot.BestPerformingApproaches = slices.Clone(l.BestPerformingApproaches)
	snapshot.CommonIssues = slices.Clone(l.CommonIssues)
	return models.RecordResult{
		Outcome:      outcome,
		TaskLearning: snapshot,
		NewPatterns:  found.Success,
		HistorySize:  len(state.PerformanceHistory),
	}
}

// RecordTaskPerformance records a completed task against its agent's state.
func (e *Engine) RecordTaskPerformance(ctx context.Context, task models.TaskPerformance) (result *models.RecordResult, err error) {
	const op = "record_task_performance"
	ctx, end := e.startOp(ctx, op, task.OrganizationID, task.AgentType)
	defer func() { end(err) }()

	if err := task.Validate(); err != nil {
		return nil, err
	}

	var res models.RecordResult
	_, err = e.mutate(ctx, task.OrganizationID, task.AgentType, op, func(st *models.AgentState) (store.AgentStatePatch, error) {
		res = ApplyTaskPerformance(st, task, e.now())
		return store.AgentStatePatch{
			Memory:             &st.Memory,
			PerformanceHistory: &st.PerformanceHistory,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	agent := string(task.AgentType)
	e.metrics.RecordTask(agent, string(res.Outcome))
	e.metrics.RecordPatterns(agent, "success", "performance", len(res.NewPatterns))

	log.Debug().
		Str("org", task.OrganizationID).
		Str("agent_type", agent).
		Str("task_id", task.TaskID).
		Str("task_type", task.TaskType).
		Str("outcome", string(res.Outcome)).
		Float64("score", res.TaskLearning.AveragePerformanceScore).
		Msg("Task performance recorded")
	return &res, nil
}

func entriesOfType(history []models.PerformanceEntry, taskType string) []models.PerformanceEntry {
	var out []models.PerformanceEntry
	for _, e := range history {
		if e.TaskType == taskType {
			out = append(out, e)
		}
	}
	return out
}
