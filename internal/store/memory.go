package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/campaignly/learning-engine/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	States map[string]*models.AgentState `json:"states"` // key: id
}

// MemoryStore implements AgentStateRepository with in-memory maps. It backs
// local dev and tests, and can snapshot to a JSON file to survive restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*models.AgentState // key: id
	byKey  map[string]string             // key: org:agent_type → id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
	wg           sync.WaitGroup
}

// NewMemoryStore creates a new in-memory store.
// If dataDir is non-empty, data is persisted to dataDir/learning.json.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		states: make(map[string]*models.AgentState),
		byKey:  make(map[string]string),
		saveCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "learning.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		m.wg.Add(1)
		go m.saveLoop()
	}

	log.Info().
		Str("snapshot", m.snapshotPath).
		Int("states", len(m.states)).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			select {
			case <-m.doneCh:
				return
			case <-time.After(500 * time.Millisecond):
			}
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{States: m.states}, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup. Records that fail
// validation are skipped rather than trusted.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped int
	for id, s := range snap.States {
		if s == nil {
			continue
		}
		s.Normalize()
		if err := s.Validate(); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Skipping invalid agent state in snapshot")
			skipped++
			continue
		}
		m.states[id] = s
		m.byKey[StateKey(s.OrganizationID, s.AgentType)] = id
	}

	log.Info().
		Int("states", len(m.states)).
		Int("skipped", skipped).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}
	m.wg.Wait()

	// Force a final snapshot write so no in-flight data is lost
	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

// ── Agent State Repository ──────────────────────────────────

func (m *MemoryStore) FindAgentState(_ context.Context, orgID string, agentType models.AgentType) (*models.AgentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := StateKey(orgID, agentType)
	id, ok := m.byKey[k]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent state", Key: k}
	}
	return m.states[id].Clone(), nil
}

func (m *MemoryStore) InsertAgentState(_ context.Context, state *models.AgentState) (*models.AgentState, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if state.ID == "" {
		return nil, &models.ValidationError{Field: "id", Reason: "is required"}
	}

	m.mu.Lock()
	k := StateKey(state.OrganizationID, state.AgentType)
	if _, exists := m.byKey[k]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	stored := state.Clone()
	if stored.Version == 0 {
		stored.Version = 1
	}
	m.states[stored.ID] = stored
	m.byKey[k] = stored.ID
	out := stored.Clone()
	m.mu.Unlock()

	m.requestSave()
	return out, nil
}

func (m *MemoryStore) UpdateAgentState(_ context.Context, id string, patch AgentStatePatch) error {
	m.mu.Lock()
	current, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent state", Key: id}
	}
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != current.Version {
		m.mu.Unlock()
		return ErrVersionConflict
	}

	next := current.Clone()
	if err := patch.apply(next); err != nil {
		m.mu.Unlock()
		return err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()
	m.states[id] = next
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteAgentState(_ context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent state", Key: id}
	}
	delete(m.states, id)
	delete(m.byKey, StateKey(s.OrganizationID, s.AgentType))
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) ListAgentStates(_ context.Context, orgID string) ([]models.AgentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.AgentState
	for _, s := range m.states {
		if s.OrganizationID == orgID || orgID == "" {
			result = append(result, *s.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OrganizationID != result[j].OrganizationID {
			return result[i].OrganizationID < result[j].OrganizationID
		}
		return result[i].AgentType < result[j].AgentType
	})
	return result, nil
}
