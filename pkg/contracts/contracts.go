// Package contracts defines the service boundary of the learning engine.
//
// The HTTP handlers and the CLI depend on these interfaces, not on the
// engine itself, so an alternative implementation (a remote client, a
// caching decorator) can be swapped in at the wiring code in pkg/server.
package contracts

import (
	"context"

	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/pkg/models"
)

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// PersistenceError is a type alias for the internal PersistenceError.
// Callers map it to "service unavailable".
type PersistenceError = store.PersistenceError

// AgentStateRepository is exposed so external wiring can provide its own backend.
type AgentStateRepository = store.AgentStateRepository

// ── Learning Service ────────────────────────────────────────

// LearningService is the full set of learning operations.
// Implementation: internal/learning.Engine
type LearningService interface {
	// GetOrCreate returns the agent's state, creating a default one on first access.
	GetOrCreate(ctx context.Context, orgID string, agentType models.AgentType) (*models.AgentState, error)

	// GetAllAgentStates returns one state per agent type, in enum order.
	GetAllAgentStates(ctx context.Context, orgID string) ([]*models.AgentState, error)

	// ResetAgentState discards all learning for an agent.
	ResetAgentState(ctx context.Context, orgID string, agentType models.AgentType) error

	// RecordTaskPerformance folds a task outcome into history, learnings and patterns.
	RecordTaskPerformance(ctx context.Context, task models.TaskPerformance) (*models.RecordResult, error)

	// ProcessFeedback applies a user rating and corrections.
	ProcessFeedback(ctx context.Context, orgID string, agentType models.AgentType, fb models.Feedback) (*models.FeedbackResult, error)

	// UpdatePreferences merges a partial preferences update.
	UpdatePreferences(ctx context.Context, orgID string, agentType models.AgentType, patch models.PreferencesPatch) (*models.AgentState, error)

	// GetLearningContext builds the generation context and prompt for a task.
	GetLearningContext(ctx context.Context, req models.ContextRequest) (*models.LearningContext, error)

	// GenerateInsights derives trend and pattern insights from history.
	GenerateInsights(ctx context.Context, orgID string, agentType models.AgentType) ([]models.LearningInsight, error)

	// GetAgentAnalysis summarizes an agent's health.
	GetAgentAnalysis(ctx context.Context, orgID string, agentType models.AgentType) (*models.AgentAnalysis, error)
}
