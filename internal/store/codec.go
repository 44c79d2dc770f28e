package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/campaignly/learning-engine/pkg/models"
)

// stateRow is the column layout shared by the SQL-backed stores.
// The JSON blobs are decoded into typed structs and validated on every read.
type stateRow struct {
	ID             string
	OrganizationID string
	AgentType      string
	Memory         []byte
	Preferences    []byte
	History        []byte
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func encodeState(s *models.AgentState) (stateRow, error) {
	mem, err := json.Marshal(s.Memory)
	if err != nil {
		return stateRow{}, fmt.Errorf("encode memory: %w", err)
	}
	prefs, err := json.Marshal(s.LearnedPreferences)
	if err != nil {
		return stateRow{}, fmt.Errorf("encode preferences: %w", err)
	}
	hist, err := json.Marshal(s.PerformanceHistory)
	if err != nil {
		return stateRow{}, fmt.Errorf("encode history: %w", err)
	}
	return stateRow{
		ID:             s.ID,
		OrganizationID: s.OrganizationID,
		AgentType:      string(s.AgentType),
		Memory:         mem,
		Preferences:    prefs,
		History:        hist,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
	}, nil
}

func (r stateRow) decode() (*models.AgentState, error) {
	s := &models.AgentState{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		AgentType:      models.AgentType(r.AgentType),
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Memory, &s.Memory); err != nil {
		return nil, fmt.Errorf("decode memory for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Preferences, &s.LearnedPreferences); err != nil {
		return nil, fmt.Errorf("decode preferences for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.History, &s.PerformanceHistory); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", r.ID, err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("stored state %s: %w", r.ID, err)
	}
	return s, nil
}
