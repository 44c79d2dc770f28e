// Package store provides the persistence port and implementations for agent learning state.
// The in-memory store backs local dev and tests; SQLite and PostgreSQL back deployments.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/campaignly/learning-engine/internal/config"
	"github.com/campaignly/learning-engine/pkg/models"
)

// AgentStateRepository is the narrow persistence port used by the learning engine.
// Exactly one record exists per (organization, agent type).
type AgentStateRepository interface {
	// FindAgentState returns *ErrNotFound when no record exists for the key.
	FindAgentState(ctx context.Context, orgID string, agentType models.AgentType) (*models.AgentState, error)

	// InsertAgentState stores a new record and returns the stored copy.
	// Returns ErrAlreadyExists if a record for the same key was inserted first.
	InsertAgentState(ctx context.Context, state *models.AgentState) (*models.AgentState, error)

	// UpdateAgentState applies the non-nil fields of patch and bumps the version.
	// Returns ErrVersionConflict when patch.ExpectedVersion is stale.
	UpdateAgentState(ctx context.Context, id string, patch AgentStatePatch) error

	// DeleteAgentState removes a record (explicit reset).
	DeleteAgentState(ctx context.Context, id string) error

	// ListAgentStates returns every stored record for an organization.
	ListAgentStates(ctx context.Context, orgID string) ([]models.AgentState, error)

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// AgentStatePatch is a partial update. Nil fields are left untouched.
type AgentStatePatch struct {
	Memory             *models.AgentMemory
	LearnedPreferences *models.LearnedPreferences
	PerformanceHistory *[]models.PerformanceEntry

	// ExpectedVersion must match the stored version. Zero skips the check.
	ExpectedVersion int64
}

// apply writes the patch onto s and validates the result.
func (p AgentStatePatch) apply(s *models.AgentState) error {
	if p.Memory != nil {
		s.Memory = p.Memory.Clone()
	}
	if p.LearnedPreferences != nil {
		s.LearnedPreferences = p.LearnedPreferences.Clone()
	}
	if p.PerformanceHistory != nil {
		h := make([]models.PerformanceEntry, len(*p.PerformanceHistory))
		for i, e := range *p.PerformanceHistory {
			h[i] = e.Clone()
		}
		s.PerformanceHistory = h
	}
	return s.Validate()
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is (or wraps) an *ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}

var (
	// ErrAlreadyExists is returned by InsertAgentState when the key is taken.
	ErrAlreadyExists = errors.New("agent state already exists")

	// ErrVersionConflict is returned when an update races another writer.
	ErrVersionConflict = errors.New("agent state version conflict")
)

// PersistenceError wraps a failed create/update/delete against the backing store.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StateKey renders the unique key of an agent state.
func StateKey(orgID string, agentType models.AgentType) string {
	return key(orgID, string(agentType))
}

func key(parts ...string) string {
	k := ""
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// ── Factory ─────────────────────────────────────────────────

// New opens the repository selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (AgentStateRepository, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(cfg.DataDir), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL, cfg.MaxConnections)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
