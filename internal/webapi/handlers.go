// Package webapi exposes the run manager's operation surface over HTTP.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pwlabs/pwrunner/internal/discovery"
	"github.com/pwlabs/pwrunner/internal/models"
	"github.com/pwlabs/pwrunner/internal/runner"
)

// Version is reported by the health endpoint. The main package assigns its
// build version at startup.
var Version = "dev"

// RunManager is the operation surface the API exposes. *runner.Manager
// satisfies it; tests substitute a fake.
type RunManager interface {
	StartRun(nodeIDs, extraArgs []string) (string, error)
	GetSummary(runID string) (*models.RunSummary, error)
	ListRuns() ([]*models.RunSummary, error)
	CancelRun(runID string) bool
}

// TestDiscoverer lists available tests.
type TestDiscoverer interface {
	Discover(ctx context.Context, opts discovery.Options) ([]discovery.DiscoveredTest, error)
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	manager    RunManager
	discoverer TestDiscoverer
}

// NewHandlers creates a new Handlers over the given collaborators.
func NewHandlers(manager RunManager, discoverer TestDiscoverer) *Handlers {
	return &Handlers{manager: manager, discoverer: discoverer}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleStartRun starts a new test run. A run already in progress is a
// conflict, reported without touching its state.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runID, err := h.manager.StartRun(req.TestNodeIDs, req.PytestArgs)
	if err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			writeError(w, http.StatusConflict, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, StartRunResponse{
		RunID:  runID,
		Status: string(models.StatusRunning),
	})
}

// HandleListRuns returns all known runs, newest first.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := h.manager.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleGetRun returns the summary for one run.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	summary, err := h.manager.GetSummary(id)
	if err != nil {
		if errors.Is(err, runner.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleCancelRun cancels the active run.
func (h *Handlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	if !h.manager.CancelRun(id) {
		writeError(w, http.StatusBadRequest, "run is not currently running or does not exist")
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Status: "cancelled", RunID: id})
}

// HandleDiscovery lists collectable tests, filtered by optional query
// parameters path, keyword, and marker.
func (h *Handlers) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tests, err := h.discoverer.Discover(r.Context(), discovery.Options{
		Path:    q.Get("path"),
		Keyword: q.Get("keyword"),
		Marker:  q.Get("marker"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tests == nil {
		tests = []discovery.DiscoveredTest{}
	}
	writeJSON(w, http.StatusOK, tests)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, manager RunManager, discoverer TestDiscoverer) {
	h := NewHandlers(manager, discoverer)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("POST /api/runs", h.HandleStartRun)
	mux.HandleFunc("GET /api/runs", h.HandleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", h.HandleCancelRun)
	mux.HandleFunc("GET /api/discovery", h.HandleDiscovery)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
