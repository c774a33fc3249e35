package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pwlabs/pwrunner/internal/metrics"
	"github.com/pwlabs/pwrunner/internal/runner"
	"github.com/pwlabs/pwrunner/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the test runner HTTP server",
		Long: `Start the HTTP server that exposes the run API, test discovery,
Prometheus metrics, and the artifact file tree.

Endpoints:
  POST   /api/runs        Start a test run
  GET    /api/runs        List runs, newest first
  GET    /api/runs/{id}   Get one run summary
  DELETE /api/runs/{id}   Cancel the active run
  GET    /api/discovery   List collectable tests
  GET    /api/health      Health check
  GET    /metrics         Prometheus metrics
  GET    /artifacts/      Persisted run artifacts`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(
				runner.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
			)
			if err != nil {
				return err
			}

			if host == "" {
				host = app.cfg.Server.Host
			}
			if port == 0 {
				port = app.cfg.Server.Port
			}

			if err := os.MkdirAll(app.root.Dir(), 0755); err != nil {
				return fmt.Errorf("creating artifact root: %w", err)
			}

			srv, err := webserver.New(webserver.Config{
				Host:        host,
				Port:        port,
				ArtifactDir: app.root.Dir(),
				CORSOrigins: app.cfg.Server.CORSOrigins,
				Manager:     app.manager,
				Discoverer:  app.discoverer,
				Gatherer:    prometheus.DefaultGatherer,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("pwrunner listening on http://%s:%d\n", host, port)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to bind the server to")
	cmd.Flags().IntVar(&port, "port", 0, "Port to bind the server to")

	return cmd
}
