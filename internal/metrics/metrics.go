// Package metrics exposes Prometheus instrumentation for the run manager
// and the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all pwrunner collectors.
type Metrics struct {
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	RunsActive   prometheus.Gauge
	RunDuration  prometheus.Histogram
	TestResults  *prometheus.CounterVec
}

// New creates collectors registered on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pwrunner",
			Name:      "runs_started_total",
			Help:      "Total test runs started",
		}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pwrunner",
			Name:      "runs_finished_total",
			Help:      "Total test runs finished, by terminal status",
		}, []string{"status"}),
		RunsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pwrunner",
			Name:      "runs_active",
			Help:      "Number of currently active runs (0 or 1)",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pwrunner",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of finished runs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		TestResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pwrunner",
			Name:      "test_results_total",
			Help:      "Total individual test results, by outcome",
		}, []string{"outcome"}),
	}
}
