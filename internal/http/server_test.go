package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/routed/internal/engine"
	"github.com/fyrsmithlabs/routed/internal/features"
	"github.com/fyrsmithlabs/routed/internal/learning"
	"github.com/fyrsmithlabs/routed/internal/outcomes"
	"github.com/fyrsmithlabs/routed/internal/scoring"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	rules, err := scoring.NewRuleStore(filepath.Join(dir, "rules"), nil)
	require.NoError(t, err)
	store, err := outcomes.NewStore(filepath.Join(dir, "outcomes", outcomes.DefaultLogName), nil)
	require.NoError(t, err)
	rec, err := learning.NewRecommender(store, learning.DefaultConfig(), nil)
	require.NoError(t, err)
	router, err := engine.New(rules, store, rec, nil)
	require.NoError(t, err)

	srv, err := NewServer(router, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresRouterAndLogger(t *testing.T) {
	_, err := NewServer(nil, zap.NewNop(), nil)
	assert.Error(t, err)

	srv := newTestServer(t)
	_, err = NewServer(srv.router, nil, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/route",
		`{"task":"fix typo in README","metrics":{"tokens":500,"loaded_files":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, scoring.WorkflowLightweight, resp.Workflow)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.NotEmpty(t, resp.Reasoning)
}

func TestRoute_EmptyTaskIsAccepted(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/route", `{"task":"","metrics":{"tokens":100}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp engine.RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, features.CategoryGeneric, resp.Category)
	assert.Equal(t, scoring.WorkflowLightweight, resp.Workflow)
}

func TestRoute_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/route", `{"task":"fix bug","metrics":{"tokens":-5}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(srv, http.MethodPost, "/api/v1/route", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutcome_RoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/route",
		`{"task":"fix broken link","metrics":{"tokens":100}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var routed engine.RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routed))

	rec = doJSON(srv, http.MethodPost, "/api/v1/outcome",
		`{"fingerprint":"`+routed.Fingerprint+`","success":true,"duration_minutes":15}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recorded":true}`, rec.Body.String())

	rec = doJSON(srv, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats engine.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalDecisions)
	assert.Equal(t, 1, stats.TotalOutcomes)
	assert.Equal(t, 1, stats.Successes)
}

func TestOutcome_Errors(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/v1/outcome",
		`{"fingerprint":"deadbeefdeadbeef","success":true,"duration_minutes":5}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(srv, http.MethodPost, "/api/v1/outcome",
		`{"fingerprint":"","success":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(srv, http.MethodPost, "/api/v1/outcome",
		`{"fingerprint":"fp","success":true,"duration_minutes":-2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
