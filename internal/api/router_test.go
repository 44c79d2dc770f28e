package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaignly/learning-engine/internal/api"
	"github.com/campaignly/learning-engine/internal/api/handlers"
	"github.com/campaignly/learning-engine/internal/config"
	"github.com/campaignly/learning-engine/internal/learning"
	"github.com/campaignly/learning-engine/internal/store"
	"github.com/campaignly/learning-engine/pkg/contracts"
	"github.com/campaignly/learning-engine/pkg/models"
)

func newTestServer(t *testing.T, apiKeys ...string) *httptest.Server {
	t.Helper()
	repo := store.NewMemoryStore("")
	cfg := &config.Config{Version: "test", Auth: config.AuthConfig{APIKeys: apiKeys}}
	srv := httptest.NewServer(api.NewRouter(cfg, handlers.New(learning.New(repo)), repo))
	t.Cleanup(func() {
		srv.Close()
		repo.Close()
	})
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, org string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if org != "" {
		req.Header.Set("X-Organization-Id", org)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[map[string]string](t, resp)["status"])

	resp = do(t, srv, http.MethodGet, "/version", "", nil)
	assert.Equal(t, "test", decode[map[string]string](t, resp)["version"])

	resp = do(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAgentStateLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/v1/agents/email_marketer/state", "org-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[models.AgentState](t, resp)
	assert.Equal(t, "org-1", st.OrganizationID)
	assert.Equal(t, models.AgentEmailMarketer, st.AgentType)

	resp = do(t, srv, http.MethodPost, "/api/v1/agents/email_marketer/performance", "org-1", map[string]any{
		"task_id":   "t1",
		"task_type": "email_single",
		"metrics":   map[string]float64{"open_rate": 0.4},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rec := decode[models.RecordResult](t, resp)
	assert.Equal(t, models.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, 1, rec.HistorySize)

	resp = do(t, srv, http.MethodPost, "/api/v1/agents/email_marketer/feedback", "org-1", models.Feedback{
		TaskID: "t1", Rating: 5, Approved: true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fb := decode[models.FeedbackResult](t, resp)
	assert.True(t, fb.Attributed)
	require.NotNil(t, fb.SuccessPattern)
	assert.Equal(t, []string{"email_single"}, fb.SuccessPattern.TaskTypes)

	// Another organization sees none of it.
	resp = do(t, srv, http.MethodGet, "/api/v1/agents/email_marketer/state", "org-2", nil)
	assert.Empty(t, decode[models.AgentState](t, resp).PerformanceHistory)

	resp = do(t, srv, http.MethodDelete, "/api/v1/agents/email_marketer/state", "org-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/v1/agents/email_marketer/state", "org-1", nil)
	fresh := decode[models.AgentState](t, resp)
	assert.NotEqual(t, st.ID, fresh.ID)
	assert.Empty(t, fresh.PerformanceHistory)
}

func TestListAgentStates(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/v1/agents?org=org-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	states := decode[[]models.AgentState](t, resp)
	require.Len(t, states, len(models.AllAgentTypes()))
	for i, at := range models.AllAgentTypes() {
		assert.Equal(t, at, states[i].AgentType)
		assert.Equal(t, "org-1", states[i].OrganizationID)
	}
}

func TestPreferencesAndContext(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodPatch, "/api/v1/agents/content_writer/preferences", "org-1", models.PreferencesPatch{
		ProductPreferences: map[string]models.ProductPreference{
			"p1": {EffectiveValueProps: []string{"Saves time"}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/v1/agents/content_writer/context?task_type=blog_post&product_id=p1", "org-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lc := decode[models.LearningContext](t, resp)
	assert.Contains(t, lc.ContextPrompt, "- Saves time")

	resp = do(t, srv, http.MethodGet, "/api/v1/agents/content_writer/context", "org-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInsightsAndAnalysis(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/api/v1/agents/analyst/insights", "org-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.LearningInsight](t, resp))

	resp = do(t, srv, http.MethodGet, "/api/v1/agents/analyst/analysis", "org-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.HealthNeedsAttention, decode[models.AgentAnalysis](t, resp).OverallHealth)
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown agent type", http.MethodGet, "/api/v1/agents/janitor/state", nil},
		{"rate out of range", http.MethodPost, "/api/v1/agents/analyst/performance",
			map[string]any{"task_id": "t", "task_type": "x", "metrics": map[string]float64{"click_rate": 1.5}}},
		{"missing task id", http.MethodPost, "/api/v1/agents/analyst/performance",
			map[string]any{"task_type": "x"}},
		{"rating out of range", http.MethodPost, "/api/v1/agents/analyst/feedback", models.Feedback{TaskID: "t", Rating: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, "org-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/agents/analyst/feedback", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIKeyGate(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp := do(t, srv, http.MethodGet, "/api/v1/agents/analyst/state", "org-1", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/agents/analyst/state", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp2, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp = do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type unavailableService struct {
	contracts.LearningService
}

func (unavailableService) GetOrCreate(context.Context, string, models.AgentType) (*models.AgentState, error) {
	return nil, &store.PersistenceError{Op: "find", Key: "org-1:analyst", Err: errors.New("connection refused")}
}

func TestPersistenceFailureIsServiceUnavailable(t *testing.T) {
	repo := store.NewMemoryStore("")
	defer repo.Close()
	srv := httptest.NewServer(api.NewRouter(&config.Config{}, handlers.New(unavailableService{}), repo))
	defer srv.Close()

	resp := do(t, srv, http.MethodGet, "/api/v1/agents/analyst/state", "org-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, handlers.StatusFor(&models.ValidationError{Field: "x", Reason: "y"}))
	assert.Equal(t, http.StatusNotFound, handlers.StatusFor(&store.ErrNotFound{Entity: "agent state", Key: "k"}))
	assert.Equal(t, http.StatusServiceUnavailable, handlers.StatusFor(&store.PersistenceError{Op: "update", Err: store.ErrVersionConflict}))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusFor(errors.New("boom")))
}
