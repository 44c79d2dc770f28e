package learning

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/pkg/models"
)

const (
	lowRatingMax       = 2
	highRatingMin      = 4
	toneCorrectionKey  = "tone"
	unspecifiedIssue   = "Unspecified issue"
	lowSatisfaction    = "Low user satisfaction"
	highSatisfaction   = "High user satisfaction"
	satisfactionFactor = 10
)

// ApplyFeedback folds a user rating into state in place.
//
// The matching recent interaction (if any) is annotated. Tone corrections
// update the tone lists. A low rating appends an anti pattern and a high
// approved rating appends a success pattern; both lists stay capped.
func ApplyFeedback(state *models.AgentState, fb models.Feedback, now time.Time) models.FeedbackResult {
	state.Normalize()
	var res models.FeedbackResult

	if i := indexOf(state.Memory.RecentInteractions, func(in models.InteractionSummary) bool {
		return in.TaskID == fb.TaskID
	}); i >= 0 {
		in := &state.Memory.RecentInteractions[i]
		in.UserFeedback = &models.UserFeedback{
			Rating:       fb.Rating,
			FeedbackText: fb.FeedbackText,
			Corrections:  slices.Clone(fb.Corrections),
			Approved:     fb.Approved,
			ReceivedAt:   now,
		}
		in.Outcome = models.OutcomeFailure
		if fb.Approved {
			in.Outcome = models.OutcomeSuccess
		}
		res.Attributed = true
		res.TaskType = in.TaskType
	}

	style := &state.LearnedPreferences.ContentStyle
	for _, c := range fb.Corrections {
		if c.Field != toneCorrectionKey {
			continue
		}
		if c.Original != "" && !slices.Contains(style.AvoidTones, c.Original) {
			style.AvoidTones = append(style.AvoidTones, c.Original)
			res.ToneChanges++
		}
		if c.Corrected != "" && !slices.Contains(style.PreferredTone, c.Corrected) {
			style.PreferredTone = append(style.PreferredTone, c.Corrected)
			res.ToneChanges++
		}
	}

	taskTypes := []string{}
	if res.Attributed {
		taskTypes = []string{res.TaskType}
	}

	switch {
	case fb.Rating <= lowRatingMax:
		p := models.AntiPattern{
			ID:           uuid.NewString(),
			Pattern:      orDefault(fb.FeedbackText, unspecifiedIssue),
			Description:  fmt.Sprintf("Content received low rating (%d/5)", fb.Rating),
			Reason:       orDefault(fb.FeedbackText, lowSatisfaction),
			TaskTypes:    taskTypes,
			Occurrences:  1,
			LastOccurred: now,
		}
		state.Memory.AntiPatterns = antiPatterns.Push(state.Memory.AntiPatterns, p)
		res.AntiPattern = &p
	case fb.Rating >= highRatingMin && fb.Approved:
		p := models.SuccessPattern{
			ID:               uuid.NewString(),
			Pattern:          highSatisfaction,
			Description:      fmt.Sprintf("Content received high rating (%d/5)", fb.Rating),
			TaskTypes:        taskTypes,
			PerformanceBoost: float64((fb.Rating - 3) * satisfactionFactor),
			UsageCount:       1,
			LastUsed:         now,
		}
		state.Memory.SuccessPatterns = successPatterns.Push(state.Memory.SuccessPatterns, p)
		res.SuccessPattern = &p
	}
	return res
}

// ProcessFeedback applies explicit user feedback to an agent's state.
// Feedback for a task outside the recent window still updates preferences
// and patterns; the miss is logged.
func (e *Engine) ProcessFeedback(ctx context.Context, orgID string, agentType models.AgentType, fb models.Feedback) (result *models.FeedbackResult, err error) {
	const op = "process_feedback"
	ctx, end := e.startOp(ctx, op, orgID, agentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(orgID, agentType); err != nil {
		return nil, err
	}
	if err := fb.Validate(); err != nil {
		return nil, err
	}

	var res models.FeedbackResult
	_, err = e.mutate(ctx, orgID, agentType, op, func(st *models.AgentState) (store.AgentStatePatch, error) {
		res = ApplyFeedback(st, fb, e.now())
		return store.AgentStatePatch{
			Memory:             &st.Memory,
			LearnedPreferences: &st.LearnedPreferences,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if !res.Attributed {
		log.Warn().
			Str("org", orgID).
			Str("agent_type", string(agentType)).
			Str("task_id", fb.TaskID).
			Msg("Feedback for task outside recent interactions, not attributed")
	}

	agent := string(agentType)
	e.metrics.RecordFeedback(agent, fb.Rating, res.Attributed)
	if res.AntiPattern != nil {
		e.metrics.RecordPatterns(agent, "anti", "feedback", 1)
	}
	if res.SuccessPattern != nil {
		e.metrics.RecordPatterns(agent, "success", "feedback", 1)
	}
	return &res, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
