// Package metrics holds the Prometheus collectors for workspace operations,
// HTTP requests, backend calls and console sessions.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/pmdesk/schema"
)

const namespace = "pmdesk"

// Metrics owns a private Prometheus registry and the collectors on it.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	BackendCallsTotal   *prometheus.CounterVec
	BackendCallDuration *prometheus.HistogramVec

	WorkspaceEvents *prometheus.CounterVec
	StreamClients   prometheus.Gauge
	SSHSessions     prometheus.Gauge
}

// New creates the collectors on a fresh registry, including Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workspace_operations_total",
				Help:      "Workspace operations by name and outcome",
			},
			[]string{"op", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workspace_operation_duration_seconds",
				Help:      "Workspace operation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		BackendCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "CRUD backend calls by table, method and outcome",
			},
			[]string{"table", "method", "status"},
		),
		BackendCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "CRUD backend call duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"table"},
		),
		WorkspaceEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workspace_events_total",
				Help:      "Workspace events emitted by type",
			},
			[]string{"type"},
		),
		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_clients",
				Help:      "Connected event stream clients",
			},
		),
		SSHSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ssh_sessions",
				Help:      "Active SSH console sessions",
			},
		),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records a workspace operation.
func (m *Metrics) ObserveOperation(op string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, status(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(seconds)
}

// ObserveBackendCall records a CRUD backend call.
func (m *Metrics) ObserveBackendCall(table, method string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.BackendCallsTotal.WithLabelValues(table, method, status(err)).Inc()
	m.BackendCallDuration.WithLabelValues(table).Observe(seconds)
}

// ObserveHTTP records a served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// OnWorkspaceEvent counts emitted workspace events.
func (m *Metrics) OnWorkspaceEvent(event schema.WorkspaceEvent) {
	if m == nil {
		return
	}
	m.WorkspaceEvents.WithLabelValues(string(event.Type)).Inc()
}

// StreamOpened and StreamClosed track connected event stream clients.
func (m *Metrics) StreamOpened() {
	if m != nil {
		m.StreamClients.Inc()
	}
}

func (m *Metrics) StreamClosed() {
	if m != nil {
		m.StreamClients.Dec()
	}
}

// SessionStarted and SessionEnded track SSH console sessions.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.SSHSessions.Inc()
	}
}

func (m *Metrics) SessionEnded() {
	if m != nil {
		m.SSHSessions.Dec()
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
