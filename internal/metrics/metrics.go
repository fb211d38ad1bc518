// Package metrics provides Prometheus instrumentation for recall.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns a private registry and the recall collectors.
// A disabled Manager accepts every call and records nothing.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	inserts        prometheus.Counter
	retrievals     prometheus.Counter
	retrievedUnits prometheus.Counter
	consolidations prometheus.Counter
	decaySweeps    prometheus.Counter
	decayedUnits   prometheus.Counter
	activeUnits    prometheus.Gauge

	echoOutcomes *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	handleTime   *prometheus.HistogramVec
}

// NewManager creates a metrics manager.
func NewManager(enabled bool) *Manager {
	if !enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "store", Name: "inserts_total",
			Help: "Memory units inserted.",
		}),
		retrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "store", Name: "retrievals_total",
			Help: "Retrieve calls served.",
		}),
		retrievedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "store", Name: "retrieved_units_total",
			Help: "Units returned by retrieve (and reinforced).",
		}),
		consolidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "store", Name: "consolidations_total",
			Help: "Summary units created by consolidation.",
		}),
		decaySweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "decay", Name: "sweeps_total",
			Help: "Decay sweeps completed.",
		}),
		decayedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "decay", Name: "units_total",
			Help: "Units whose importance changed during a sweep.",
		}),
		activeUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recall", Subsystem: "store", Name: "active_units",
			Help: "Units currently eligible for retrieval.",
		}),
		echoOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "echo", Name: "assessments_total",
			Help: "Echo assessments by outcome.",
		}, []string{"outcome"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "dispatch", Name: "decisions_total",
			Help: "Dispatch decisions by strategy.",
		}, []string{"strategy", "fallback"}),
		handleTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recall", Subsystem: "orchestrator", Name: "handle_duration_seconds",
			Help:    "Latency of a full handle call.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.inserts, m.retrievals, m.retrievedUnits, m.consolidations,
		m.decaySweeps, m.decayedUnits, m.activeUnits,
		m.echoOutcomes, m.dispatches, m.handleTime,
	)

	return m
}

// NoOpManager returns a disabled manager.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m != nil && m.enabled
}

// Registry exposes the underlying registry, nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	if !m.Enabled() {
		return nil
	}
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Manager) RecordInsert() {
	if m.Enabled() {
		m.inserts.Inc()
	}
}

func (m *Manager) RecordRetrieve(returned int) {
	if m.Enabled() {
		m.retrievals.Inc()
		m.retrievedUnits.Add(float64(returned))
	}
}

func (m *Manager) RecordConsolidation() {
	if m.Enabled() {
		m.consolidations.Inc()
	}
}

func (m *Manager) RecordDecaySweep(decayed int) {
	if m.Enabled() {
		m.decaySweeps.Inc()
		m.decayedUnits.Add(float64(decayed))
	}
}

func (m *Manager) SetActiveUnits(n int) {
	if m.Enabled() {
		m.activeUnits.Set(float64(n))
	}
}

func (m *Manager) RecordEcho(outcome string) {
	if m.Enabled() {
		m.echoOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) RecordDispatch(strategy string, fallback bool) {
	if m.Enabled() {
		fb := "false"
		if fallback {
			fb = "true"
		}
		m.dispatches.WithLabelValues(strategy, fb).Inc()
	}
}

func (m *Manager) ObserveHandle(d time.Duration, err error) {
	if m.Enabled() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.handleTime.WithLabelValues(status).Observe(d.Seconds())
	}
}
