package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ActiveSessions      prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	Turns               *prometheus.CounterVec
	GenerationFallbacks *prometheus.CounterVec
	GenerationLatency   *prometheus.HistogramVec
	HTTPRequests        *prometheus.CounterVec

	registry *prometheus.Registry
	window   *flowWindow
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live assessment sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed conversation turns by step kind.",
		}, []string{"step"}),
		GenerationFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Generation calls that fell back to fixed text, by flow.",
		}, []string{"flow"}),
		GenerationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_ms",
			Help:      "Latency of retrieval plus generation in milliseconds, by flow.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"flow"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		registry: reg,
		window:   newFlowWindow(256),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Turn(step string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(step).Inc()
}

func (m *Metrics) Fallback(flow string) {
	if m == nil {
		return
	}
	m.GenerationFallbacks.WithLabelValues(flow).Inc()
	m.window.Fallback(flow)
}

// ObserveGeneration records one generation flow in both the histogram and the
// rolling latency window.
func (m *Metrics) ObserveGeneration(flow string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.GenerationLatency.WithLabelValues(flow).Observe(ms)
	m.window.Observe(flow, ms)
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// SnapshotLatency returns rolling per-flow latency and fallback statistics.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Flows: []FlowStats{}}
	}
	return m.window.Snapshot(time.Now())
}

// Handler serves the instruments in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
