package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwlabs/pwrunner/internal/discovery"
	"github.com/pwlabs/pwrunner/internal/metrics"
	"github.com/pwlabs/pwrunner/internal/models"
	"github.com/pwlabs/pwrunner/internal/runner"
	"github.com/pwlabs/pwrunner/internal/webapi"
)

type stubManager struct {
	runs []*models.RunSummary
}

func (s *stubManager) StartRun(nodeIDs, extraArgs []string) (string, error) {
	return "run-20250301-120000-a1b2c3d4", nil
}

func (s *stubManager) GetSummary(runID string) (*models.RunSummary, error) {
	return nil, runner.ErrRunNotFound
}

func (s *stubManager) ListRuns() ([]*models.RunSummary, error) {
	return s.runs, nil
}

func (s *stubManager) CancelRun(runID string) bool { return false }

type stubDiscoverer struct{}

func (stubDiscoverer) Discover(_ context.Context, _ discovery.Options) ([]discovery.DiscoveredTest, error) {
	return nil, nil
}

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Manager == nil {
		cfg.Manager = &stubManager{}
	}
	if cfg.Discoverer == nil {
		cfg.Discoverer = stubDiscoverer{}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	return srv
}

func TestNew_RequiresManager(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestServer_APIRoutes(t *testing.T) {
	srv := newServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health webapi.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RunsStarted.Inc()
	m.RunsFinished.WithLabelValues("completed").Inc()

	srv := newServer(t, Config{Gatherer: reg})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pwrunner_runs_started_total 1")
	assert.Contains(t, rec.Body.String(), `pwrunner_runs_finished_total{status="completed"} 1`)
}

func TestServer_ServesArtifacts(t *testing.T) {
	dir := t.TempDir()
	runDir := filepath.Join(dir, "run-20250301-120000-a1b2c3d4")
	require.NoError(t, os.MkdirAll(runDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "run-summary.json"), []byte(`{"run_id":"x"}`), 0644))

	srv := newServer(t, Config{ArtifactDir: dir})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/artifacts/run-20250301-120000-a1b2c3d4/run-summary.json", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"run_id":"x"}`, rec.Body.String())
}

func TestServer_NoArtifactDir(t *testing.T) {
	srv := newServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artifacts/anything", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CORSWiring(t *testing.T) {
	srv := newServer(t, Config{CORSOrigins: []string{"http://localhost:5173"}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
