// Package metrics exposes Prometheus instrumentation for crawls and pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects pipeline counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	phaseTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	runsTotal     *prometheus.CounterVec
}

// NewMetrics builds a Metrics backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	fetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeroecho",
			Subsystem: "crawler",
			Name:      "fetch_total",
			Help:      "Page fetches by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zeroecho",
			Subsystem: "crawler",
			Name:      "fetch_duration_seconds",
			Help:      "Page fetch duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	phaseTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeroecho",
			Subsystem: "pipeline",
			Name:      "articles_total",
			Help:      "Articles processed by phase and outcome.",
		},
		[]string{"phase", "outcome"},
	)
	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zeroecho",
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Phase duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zeroecho",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(fetchTotal, fetchDuration, phaseTotal, phaseDuration, runsTotal)

	return &Metrics{
		registry:      registry,
		fetchTotal:    fetchTotal,
		fetchDuration: fetchDuration,
		phaseTotal:    phaseTotal,
		phaseDuration: phaseDuration,
		runsTotal:     runsTotal,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one page fetch.
func (m *Metrics) ObserveFetch(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(outcome).Inc()
	m.fetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePhase records the outcome counts and duration of one phase.
func (m *Metrics) ObservePhase(phase string, succeeded, failed, skipped int, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseTotal.WithLabelValues(phase, "succeeded").Add(float64(succeeded))
	m.phaseTotal.WithLabelValues(phase, "failed").Add(float64(failed))
	m.phaseTotal.WithLabelValues(phase, "skipped").Add(float64(skipped))
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}
