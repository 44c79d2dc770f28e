package models

import "fmt"

// ── Engine requests & results ───────────────────────────────

// TaskPerformance is a task-completion event from the workflow layer.
type TaskPerformance struct {
	OrganizationID string             `json:"organization_id"`
	AgentType      AgentType          `json:"agent_type"`
	TaskID         string             `json:"task_id"`
	TaskType       string             `json:"task_type"`
	Metrics        PerformanceMetrics `json:"metrics"`
	ContentSummary string             `json:"content_summary,omitempty"`
}

// Validate checks required identifiers and metric ranges.
func (t TaskPerformance) Validate() error {
	if err := ValidateKey(t.OrganizationID, t.AgentType); err != nil {
		return err
	}
	if t.TaskID == "" {
		return &ValidationError{Field: "task_id", Reason: "is required"}
	}
	if t.TaskType == "" {
		return &ValidationError{Field: "task_type", Reason: "is required"}
	}
	return t.Metrics.Validate()
}

// RecordResult is returned after a task outcome was folded into state.
type RecordResult struct {
	Outcome      Outcome          `json:"outcome"`
	TaskLearning TaskTypeLearning `json:"task_learning"`
	NewPatterns  []SuccessPattern `json:"new_patterns"`
	HistorySize  int              `json:"history_size"`
}

// FeedbackEvent pairs feedback with the agent it belongs to.
type FeedbackEvent struct {
	OrganizationID string    `json:"organization_id"`
	AgentType      AgentType `json:"agent_type"`
	Feedback       Feedback  `json:"feedback"`
}

// FeedbackResult reports what a piece of feedback changed.
type FeedbackResult struct {
	// Attributed is false when no recent interaction matched the task ID.
	Attributed     bool            `json:"attributed"`
	TaskType       string          `json:"task_type,omitempty"`
	AntiPattern    *AntiPattern    `json:"anti_pattern,omitempty"`
	SuccessPattern *SuccessPattern `json:"success_pattern,omitempty"`
	ToneChanges    int             `json:"tone_changes"`
}

// ContextRequest selects the learnings to hand to the content generator.
type ContextRequest struct {
	OrganizationID string    `json:"organization_id"`
	AgentType      AgentType `json:"agent_type"`
	TaskType       string    `json:"task_type"`
	ProductID      string    `json:"product_id,omitempty"`
	AudienceID     string    `json:"audience_id,omitempty"`
}

// ValidateKey checks the (organization, agent type) pair every operation is keyed on.
func ValidateKey(orgID string, agentType AgentType) error {
	if orgID == "" {
		return &ValidationError{Field: "organization_id", Reason: "is required"}
	}
	if !agentType.Valid() {
		return &ValidationError{Field: "agent_type", Reason: fmt.Sprintf("unknown agent type %q", agentType)}
	}
	return nil
}
