package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campaignly/learning-engine/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements AgentStateRepository on PostgreSQL with JSONB columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and creates the schema if it doesn't exist.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Str("host", cfg.ConnConfig.Host).Int32("max_conns", cfg.MaxConns).Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS agent_learning_states (
			id                  TEXT PRIMARY KEY,
			organization_id     TEXT NOT NULL,
			agent_type          TEXT NOT NULL,
			memory              JSONB NOT NULL DEFAULT '{}',
			learned_preferences JSONB NOT NULL DEFAULT '{}',
			performance_history JSONB NOT NULL DEFAULT '[]',
			version             BIGINT NOT NULL DEFAULT 1,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (organization_id, agent_type)
		);

		CREATE INDEX IF NOT EXISTS idx_agent_learning_states_org ON agent_learning_states (organization_id);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

const pgColumns = `id, organization_id, agent_type, memory, learned_preferences, performance_history, version, created_at, updated_at`

func scanPgRow(row pgx.Row) (*models.AgentState, error) {
	var r stateRow
	if err := row.Scan(&r.ID, &r.OrganizationID, &r.AgentType, &r.Memory, &r.Preferences, &r.History,
		&r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r.decode()
}

func (s *PostgresStore) FindAgentState(ctx context.Context, orgID string, agentType models.AgentType) (*models.AgentState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgColumns+` FROM agent_learning_states WHERE organization_id = $1 AND agent_type = $2`,
		orgID, string(agentType))
	st, err := scanPgRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent state", Key: StateKey(orgID, agentType)}
	}
	return st, err
}

func (s *PostgresStore) InsertAgentState(ctx context.Context, state *models.AgentState) (*models.AgentState, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	stored := state.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	r, err := encodeState(stored)
	if err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO agent_learning_states (`+pgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (organization_id, agent_type) DO NOTHING`,
		r.ID, r.OrganizationID, r.AgentType, r.Memory, r.Preferences, r.History, r.Version, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyExists
	}
	return stored, nil
}

func (s *PostgresStore) UpdateAgentState(ctx context.Context, id string, patch AgentStatePatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	current, err := scanPgRow(tx.QueryRow(ctx,
		`SELECT `+pgColumns+` FROM agent_learning_states WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return &ErrNotFound{Entity: "agent state", Key: id}
	}
	if err != nil {
		return err
	}
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != current.Version {
		return ErrVersionConflict
	}

	if err := patch.apply(current); err != nil {
		return err
	}
	current.UpdatedAt = time.Now().UTC()
	r, err := encodeState(current)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE agent_learning_states
		SET memory = $1, learned_preferences = $2, performance_history = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		r.Memory, r.Preferences, r.History, r.UpdatedAt, id, current.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteAgentState(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agent_learning_states WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent state", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListAgentStates(ctx context.Context, orgID string) ([]models.AgentState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgColumns+` FROM agent_learning_states WHERE organization_id = $1 ORDER BY agent_type`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.AgentState
	for rows.Next() {
		st, err := scanPgRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
