// Package metrics defines the Prometheus collectors for backend calls, HTTP traffic and imports,
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds all Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	BackendWritesTotal   *prometheus.CounterVec
	BackendReadsTotal    *prometheus.CounterVec
	BackendCallDuration  *prometheus.HistogramVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ImportsTotal         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// A *prometheus.Registry is also used as the gatherer for Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BackendWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmdex_backend_writes_total",
				Help: "Backend write calls by backend, operation and outcome.",
			},
			[]string{"backend", "op", "outcome"},
		),
		BackendReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmdex_backend_reads_total",
				Help: "Backend read calls by backend, operation and outcome.",
			},
			[]string{"backend", "op", "outcome"},
		),
		BackendCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmdex_backend_call_duration_seconds",
				Help:    "Backend call latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"backend", "op"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmdex_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmdex_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "filmdex_http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmdex_imports_total",
				Help: "Import file events by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		gatherer: prometheus.DefaultGatherer,
	}

	reg.MustRegister(
		m.BackendWritesTotal,
		m.BackendReadsTotal,
		m.BackendCallDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ImportsTotal,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// NewIsolated returns metrics on a fresh registry, for tests and embedded use.
func NewIsolated() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveWrite records one backend write call.
func (m *Metrics) ObserveWrite(backendName, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BackendWritesTotal.WithLabelValues(backendName, op, outcome(err)).Inc()
	m.BackendCallDuration.WithLabelValues(backendName, op).Observe(elapsed.Seconds())
}

// ObserveRead records one backend read call.
func (m *Metrics) ObserveRead(backendName, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BackendReadsTotal.WithLabelValues(backendName, op, outcome(err)).Inc()
	m.BackendCallDuration.WithLabelValues(backendName, op).Observe(elapsed.Seconds())
}

// ObserveImport records one handled import event.
func (m *Metrics) ObserveImport(action string, err error) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(action, outcome(err)).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
