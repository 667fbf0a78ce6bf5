// Package metrics exposes reconciliation counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	rowsTotal    *prometheus.CounterVec
	matchesTotal *prometheus.CounterVec
	writesTotal  *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
}

// New registers the collectors, plus Go and process collectors, on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		rowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rostersync",
			Name:      "rows_total",
			Help:      "Rows evaluated, by gate decision.",
		}, []string{"decision"}),
		matchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rostersync",
			Name:      "matches_total",
			Help:      "Rows evaluated, by match type.",
		}, []string{"type"}),
		writesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rostersync",
			Name:      "writes_total",
			Help:      "Registry writes, by outcome (ok, error, dry_run).",
		}, []string{"outcome"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rostersync",
			Name:      "runs_total",
			Help:      "Reconciliation runs, by result (ok, error).",
		}, []string{"result"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rostersync",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs.",
			Buckets: []float64{
				0.1, 0.25, 0.5,
				1, 2.5, 5,
				10, 30, 60, 120,
			},
		}),
	}
}

// Row counts one evaluated row.
func (m *Metrics) Row(decision, matchType string) {
	if m == nil {
		return
	}
	m.rowsTotal.WithLabelValues(decision).Inc()
	m.matchesTotal.WithLabelValues(matchType).Inc()
}

// Write counts one write attempt outcome.
func (m *Metrics) Write(outcome string) {
	if m == nil {
		return
	}
	m.writesTotal.WithLabelValues(outcome).Inc()
}

// Run records a finished run.
func (m *Metrics) Run(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
