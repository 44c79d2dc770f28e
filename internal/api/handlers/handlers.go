// Package handlers implements the HTTP handlers for the learning engine API.
// Every handler resolves the organization from the request context and the
// agent type from the URL, then delegates to the LearningService.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/campaignly/learning-engine/internal/api/middleware"
	"github.com/campaignly/learning-engine/pkg/contracts"
	"github.com/campaignly/learning-engine/pkg/models"
)

const maxBodyBytes = 1 << 20

// Handlers holds all handler dependencies.
type Handlers struct {
	Learning contracts.LearningService
}

// New creates a new Handlers instance.
func New(svc contracts.LearningService) *Handlers {
	return &Handlers{Learning: svc}
}

// ══════════════════════════════════════════════════════════════
// ── Agent State ──────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListAgentStates handles GET /api/v1/agents
func (h *Handlers) ListAgentStates(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r.Context())
	states, err := h.Learning.GetAllAgentStates(r.Context(), org)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, states)
}

// GetAgentState handles GET /api/v1/agents/{agentType}/state
func (h *Handlers) GetAgentState(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	state, err := h.Learning.GetOrCreate(r.Context(), middleware.GetOrganization(r.Context()), agentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// ResetAgentState handles DELETE /api/v1/agents/{agentType}/state
func (h *Handlers) ResetAgentState(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	if err := h.Learning.ResetAgentState(r.Context(), middleware.GetOrganization(r.Context()), agentType); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════
// ── Learning Inputs ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// RecordPerformance handles POST /api/v1/agents/{agentType}/performance
func (h *Handlers) RecordPerformance(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	var task models.TaskPerformance
	if !decodeBody(w, r, &task) {
		return
	}
	task.OrganizationID = middleware.GetOrganization(r.Context())
	task.AgentType = agentType

	res, err := h.Learning.RecordTaskPerformance(r.Context(), task)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// SubmitFeedback handles POST /api/v1/agents/{agentType}/feedback
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	var fb models.Feedback
	if !decodeBody(w, r, &fb) {
		return
	}

	res, err := h.Learning.ProcessFeedback(r.Context(), middleware.GetOrganization(r.Context()), agentType, fb)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// UpdatePreferences handles PATCH /api/v1/agents/{agentType}/preferences
func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	var patch models.PreferencesPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	state, err := h.Learning.UpdatePreferences(r.Context(), middleware.GetOrganization(r.Context()), agentType, patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// ══════════════════════════════════════════════════════════════
// ── Learning Outputs ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// GetLearningContext handles GET /api/v1/agents/{agentType}/context?task_type=&product_id=&audience_id=
func (h *Handlers) GetLearningContext(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	lc, err := h.Learning.GetLearningContext(r.Context(), models.ContextRequest{
		OrganizationID: middleware.GetOrganization(r.Context()),
		AgentType:      agentType,
		TaskType:       q.Get("task_type"),
		ProductID:      q.Get("product_id"),
		AudienceID:     q.Get("audience_id"),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lc)
}

// GetInsights handles GET /api/v1/agents/{agentType}/insights
func (h *Handlers) GetInsights(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	insights, err := h.Learning.GenerateInsights(r.Context(), middleware.GetOrganization(r.Context()), agentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, insights)
}

// GetAnalysis handles GET /api/v1/agents/{agentType}/analysis
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	agentType, ok := agentTypeParam(w, r)
	if !ok {
		return
	}
	analysis, err := h.Learning.GetAgentAnalysis(r.Context(), middleware.GetOrganization(r.Context()), agentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// ── Helpers ──────────────────────────────────────────────────

func agentTypeParam(w http.ResponseWriter, r *http.Request) (models.AgentType, bool) {
	agentType, err := models.ParseAgentType(chi.URLParam(r, "agentType"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return agentType, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	var (
		ve *models.ValidationError
		nf *contracts.ErrNotFound
		pe *contracts.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &pe):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Learning operation failed")
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
