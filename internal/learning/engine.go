// Package learning implements the agent performance learning engine.
//
// Task outcomes and user feedback are folded into one AgentState per
// (organization, agent type). Reads derive a generation-time context prompt,
// trend insights and a health analysis from the stored state. All rules are
// deterministic thresholds over bounded history; nothing is trained.
//
// Writes for a key are serialized in-process by a per-key mutex. Across
// processes the store's version check detects a lost update and the
// mutation is re-run on fresh state.
package learning

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/campaignly/learning-engine/internal/metrics"
	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/pkg/models"
)

const defaultConflictRetries = 3

// Engine owns every read-modify-write against the agent state repository.
type Engine struct {
	repo    store.AgentStateRepository
	locks   *keyLocks
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	retries int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics reports engine activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConflictRetries bounds how often a mutation is re-run after a version conflict.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = n
		}
	}
}

// New creates a learning engine backed by repo.
func New(repo store.AgentStateRepository, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		locks:   newKeyLocks(),
		tracer:  otel.Tracer("learning-engine"),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		retries: defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ── State lifecycle ─────────────────────────────────────────

// GetOrCreate returns the state for the key, creating it with defaults on first access.
// Repeated calls return the same stored record.
func (e *Engine) GetOrCreate(ctx context.Context, orgID string, agentType models.AgentType) (state *models.AgentState, err error) {
	const op = "get_or_create"
	ctx, end := e.startOp(ctx, op, orgID, agentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(orgID, agentType); err != nil {
		return nil, err
	}
	return e.getOrCreate(ctx, orgID, agentType)
}

func (e *Engine) getOrCreate(ctx context.Context, orgID string, agentType models.AgentType) (*models.AgentState, error) {
	k := store.StateKey(orgID, agentType)

	st, err := e.repo.FindAgentState(ctx, orgID, agentType)
	if err == nil {
		return st, nil
	}
	if !store.IsNotFound(err) {
		return nil, e.persistenceError("find", k, err)
	}

	stored, err := e.repo.InsertAgentState(ctx, models.NewAgentState(e.newID(), orgID, agentType, e.now()))
	if errors.Is(err, store.ErrAlreadyExists) {
		// Another caller created it first.
		st, err := e.repo.FindAgentState(ctx, orgID, agentType)
		if err != nil {
			return nil, e.persistenceError("find", k, err)
		}
		return st, nil
	}
	if err != nil {
		return nil, e.persistenceError("create", k, err)
	}

	e.metrics.RecordStateCreated(string(agentType))
	log.Info().
		Str("org", orgID).
		Str("agent_type", string(agentType)).
		Str("id", stored.ID).
		Msg("Agent state created")
	return stored, nil
}

// GetAllAgentStates returns (and initializes) one state per known agent type, in enum order.
func (e *Engine) GetAllAgentStates(ctx context.Context, orgID string) (states []*models.AgentState, err error) {
	const op = "get_all_agent_states"
	ctx, end := e.startOp(ctx, op, orgID, "")
	defer func() { end(err) }()

	if orgID == "" {
		return nil, &models.ValidationError{Field: "organization_id", Reason: "is required"}
	}

	types := models.AllAgentTypes()
	states = make([]*models.AgentState, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			st, err := e.getOrCreate(gctx, orgID, t)
			if err != nil {
				return err
			}
			states[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

// ResetAgentState deletes the state for the key. The next access recreates defaults.
// Resetting a key that has no state is a no-op.
func (e *Engine) ResetAgentState(ctx context.Context, orgID string, agentType models.AgentType) (err error) {
	const op = "reset_agent_state"
	ctx, end := e.startOp(ctx, op, orgID, agentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(orgID, agentType); err != nil {
		return err
	}

	k := store.StateKey(orgID, agentType)
	unlock := e.locks.Lock(k)
	defer unlock()

	st, err := e.repo.FindAgentState(ctx, orgID, agentType)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return e.persistenceError("find", k, err)
	}
	if err := e.repo.DeleteAgentState(ctx, st.ID); err != nil && !store.IsNotFound(err) {
		return e.persistenceError("delete", k, err)
	}

	log.Info().Str("org", orgID).Str("agent_type", string(agentType)).Msg("Agent state reset")
	return nil
}

// UpdatePreferences applies dashboard edits to the learned preferences.
func (e *Engine) UpdatePreferences(ctx context.Context, orgID string, agentType models.AgentType, patch models.PreferencesPatch) (state *models.AgentState, err error) {
	const op = "update_preferences"
	ctx, end := e.startOp(ctx, op, orgID, agentType)
	defer func() { end(err) }()

	if err := models.ValidateKey(orgID, agentType); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	return e.mutate(ctx, orgID, agentType, op, func(st *models.AgentState) (store.AgentStatePatch, error) {
		ApplyPreferencesPatch(st, patch)
		p := store.AgentStatePatch{LearnedPreferences: &st.LearnedPreferences}
		if patch.OrganizationContext != nil {
			p.Memory = &st.Memory
		}
		return p, nil
	})
}

// ApplyPreferencesPatch writes patch onto state in place. Replacement
// sections overwrite; map entries are upserted by key.
func ApplyPreferencesPatch(state *models.AgentState, patch models.PreferencesPatch) {
	prefs := &state.LearnedPreferences
	if patch.OrganizationContext != nil {
		state.Memory.OrganizationContext = *patch.OrganizationContext
	}
	if patch.ContentStyle != nil {
		prefs.ContentStyle = *patch.ContentStyle
	}
	if patch.Messaging != nil {
		prefs.Messaging = *patch.Messaging
	}
	for k, v := range patch.AudiencePatterns {
		prefs.AudiencePatterns[k] = v
	}
	for k, v := range patch.ChannelPreferences {
		prefs.ChannelPreferences[k] = v
	}
	for k, v := range patch.ProductPreferences {
		prefs.ProductPreferences[k] = v
	}
}

// ── Read-modify-write ───────────────────────────────────────

// mutateFunc edits a fresh copy of the state and returns the fields to persist.
// It may run more than once, so it must not have side effects outside state.
type mutateFunc func(state *models.AgentState) (store.AgentStatePatch, error)

// mutate loads (or creates) the state, applies fn and writes the patch
// guarded by the loaded version. A version conflict re-runs fn on fresh
// state up to e.retries times; any other failure is returned as is.
func (e *Engine) mutate(ctx context.Context, orgID string, agentType models.AgentType, op string, fn mutateFunc) (*models.AgentState, error) {
	k := store.StateKey(orgID, agentType)
	unlock := e.locks.Lock(k)
	defer unlock()

	var result *models.AgentState
	attempt := func() error {
		st, err := e.getOrCreate(ctx, orgID, agentType)
		if err != nil {
			return backoff.Permanent(err)
		}
		patch, err := fn(st)
		if err != nil {
			return backoff.Permanent(err)
		}
		patch.ExpectedVersion = st.Version

		err = e.repo.UpdateAgentState(ctx, st.ID, patch)
		var ve *models.ValidationError
		switch {
		case err == nil:
			st.Version++
			st.UpdatedAt = e.now()
			result = st
			return nil
		case errors.Is(err, store.ErrVersionConflict):
			e.metrics.RecordConflict(op)
			log.Debug().Str("key", k).Str("op", op).Msg("Agent state changed underneath, retrying")
			return err
		case errors.As(err, &ve):
			return backoff.Permanent(err)
		default:
			return backoff.Permanent(e.persistenceError("update", k, err))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond
	if err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.retries)), ctx)); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, e.persistenceError("update", k, err)
		}
		return nil, err
	}
	return result, nil
}

// ── Helpers ─────────────────────────────────────────────────

func (e *Engine) persistenceError(op, key string, err error) error {
	var pe *store.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	e.metrics.RecordPersistenceError(op)
	log.Error().Err(err).Str("op", op).Str("key", key).Msg("Agent state persistence failed")
	return &store.PersistenceError{Op: op, Key: key, Err: err}
}

// startOp opens a span for an engine operation. The returned func ends it
// and records the operation latency.
func (e *Engine) startOp(ctx context.Context, op, orgID string, agentType models.AgentType) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "learning."+op,
		trace.WithAttributes(
			attribute.String("learning.organization_id", orgID),
			attribute.String("learning.agent_type", string(agentType)),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.ObserveOperation(op, start, err)
	}
}
