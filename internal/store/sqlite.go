package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/campaignly/learning-engine/pkg/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements AgentStateRepository on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and ensures the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the read-modify-write path.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_states (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		agent_type TEXT NOT NULL,
		memory TEXT NOT NULL,
		learned_preferences TEXT NOT NULL,
		performance_history TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(organization_id, agent_type)
	);
	CREATE INDEX IF NOT EXISTS idx_agent_states_org ON agent_states(organization_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const sqliteColumns = `id, organization_id, agent_type, memory, learned_preferences, performance_history, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRow(sc rowScanner) (*models.AgentState, error) {
	var r stateRow
	var mem, prefs, hist, created, updated string
	if err := sc.Scan(&r.ID, &r.OrganizationID, &r.AgentType, &mem, &prefs, &hist, &r.Version, &created, &updated); err != nil {
		return nil, err
	}
	r.Memory, r.Preferences, r.History = []byte(mem), []byte(prefs), []byte(hist)

	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", r.ID, err)
	}
	return r.decode()
}

func (s *SQLiteStore) FindAgentState(ctx context.Context, orgID string, agentType models.AgentType) (*models.AgentState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM agent_states WHERE organization_id = ? AND agent_type = ?`,
		orgID, string(agentType))
	st, err := scanSQLiteRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent state", Key: StateKey(orgID, agentType)}
	}
	return st, err
}

func (s *SQLiteStore) InsertAgentState(ctx context.Context, state *models.AgentState) (*models.AgentState, error) {
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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_states (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization_id, agent_type) DO NOTHING`,
		r.ID, r.OrganizationID, r.AgentType, string(r.Memory), string(r.Preferences), string(r.History),
		r.Version, r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrAlreadyExists
	}
	return stored, nil
}

func (s *SQLiteStore) UpdateAgentState(ctx context.Context, id string, patch AgentStatePatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := scanSQLiteRow(tx.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM agent_states WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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

	res, err := tx.ExecContext(ctx, `
		UPDATE agent_states
		SET memory = ?, learned_preferences = ?, performance_history = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(r.Memory), string(r.Preferences), string(r.History), r.UpdatedAt.Format(time.RFC3339Nano),
		id, current.Version)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrVersionConflict
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteAgentState(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_states WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Entity: "agent state", Key: id}
	}
	return nil
}

func (s *SQLiteStore) ListAgentStates(ctx context.Context, orgID string) ([]models.AgentState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM agent_states WHERE organization_id = ? ORDER BY agent_type`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.AgentState
	for rows.Next() {
		st, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }
