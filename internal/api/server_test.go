package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/config"
	"github.com/arbminer/arbminer/internal/crawler"
	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
)

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	return NewServer(config.ServerConfig{Address: ":0"}, deps, logger.NewNop())
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RecordAPIRequest("platform_a", "success")
	s := newTestServer(t, Deps{Metrics: m})

	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arbminer_api_requests_total")
}

func TestStateEndpoint(t *testing.T) {
	store := crawler.NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(domain.CrawlerState{LastTaskIndex: 4, TotalTasks: 9}))

	s := newTestServer(t, Deps{States: store})

	rec := doRequest(s, http.MethodGet, "/api/v1/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var state domain.CrawlerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, 4, state.LastTaskIndex)
	assert.Equal(t, 9, state.TotalTasks)
}

func TestStateEndpointFreshState(t *testing.T) {
	store := crawler.NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	s := newTestServer(t, Deps{States: store})

	rec := doRequest(s, http.MethodGet, "/api/v1/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var state domain.CrawlerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, -1, state.LastTaskIndex)
}

func TestEndpointsWithoutDatabase(t *testing.T) {
	s := newTestServer(t, Deps{})

	paths := []string{
		"/api/v1/state",
		"/api/v1/products",
		"/api/v1/products/B00TEST",
		"/api/v1/runs",
		"/api/v1/matches",
	}
	for _, path := range paths {
		rec := doRequest(s, http.MethodGet, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
