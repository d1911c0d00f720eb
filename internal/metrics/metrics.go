// Package metrics defines the Prometheus collectors for gaze tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attention"

// Drop reasons for SamplesDropped.
const (
	DropQueueFull   = "queue_full"
	DropRateLimited = "rate_limited"
	DropRejected    = "rejected"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SamplesIngested    prometheus.Counter
	SamplesDropped     *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	DistractionSeconds prometheus.Histogram
	ActiveSessions     prometheus.Gauge
	WSConnections      *prometheus.GaugeVec
	ReportExports      *prometheus.CounterVec
}

// New registers collectors on a fresh registry, including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SamplesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_ingested_total",
			Help: "Gaze samples accepted by a focus monitor.",
		}),
		SamplesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_dropped_total",
			Help: "Gaze samples discarded before classification.",
		}, []string{"reason"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "focus_transitions_total",
			Help: "Focus state changes by target state.",
		}, []string{"state"}),
		DistractionSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "distraction_duration_seconds",
			Help:    "Duration of closed distraction intervals.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Sessions with a running focus monitor.",
		}),
		WSConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections",
			Help: "Open WebSocket connections by role.",
		}, []string{"role"}),
		ReportExports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "report_exports_total",
			Help: "Report export jobs by result.",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Ingested counts n accepted samples.
func (m *Metrics) Ingested(n int) {
	if m == nil {
		return
	}
	m.SamplesIngested.Add(float64(n))
}

// Dropped counts one discarded sample.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.SamplesDropped.WithLabelValues(reason).Inc()
}

// Transition counts a focus change; closedMs > 0 also observes the closed interval.
func (m *Metrics) Transition(state string, closedMs int64) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
	if closedMs > 0 {
		m.DistractionSeconds.Observe(float64(closedMs) / 1000)
	}
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

// Connected adjusts the WebSocket gauge for role by delta.
func (m *Metrics) Connected(role string, delta float64) {
	if m != nil {
		m.WSConnections.WithLabelValues(role).Add(delta)
	}
}

// Export counts a report export outcome.
func (m *Metrics) Export(result string) {
	if m != nil {
		m.ReportExports.WithLabelValues(result).Inc()
	}
}
