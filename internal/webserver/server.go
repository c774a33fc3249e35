// Package webserver provides the HTTP server that exposes the run API,
// Prometheus metrics, and the artifact file tree.
package webserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwlabs/pwrunner/internal/webapi"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	ArtifactDir string
	CORSOrigins []string
	Manager     webapi.RunManager
	Discoverer  webapi.TestDiscoverer
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("webserver config requires a run manager")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	registerRoutes(mux, cfg)

	var handler http.Handler = mux
	if len(cfg.CORSOrigins) > 0 {
		handler = webapi.CORSMiddleware(mux, cfg.CORSOrigins...)
	}

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// registerRoutes sets up the API, metrics, and artifact routes.
func registerRoutes(mux *http.ServeMux, cfg Config) {
	webapi.RegisterRoutes(mux, cfg.Manager, cfg.Discoverer)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	if cfg.ArtifactDir != "" {
		fileServer := http.FileServer(http.Dir(cfg.ArtifactDir))
		mux.Handle("GET /artifacts/", http.StripPrefix("/artifacts/", fileServer))
	}
}

// ListenAndServe starts the HTTP server and blocks until it stops.
// Cancelling ctx triggers a graceful shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Info("HTTP server starting", "address", s.srv.Addr)

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	}()

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
