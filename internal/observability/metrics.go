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

// Metrics records conversation and HTTP measurements on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal          *prometheus.CounterVec
	turnDuration        *prometheus.HistogramVec
	backendFailures     *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Conversation turns handled, by dispatch path",
		}, []string{"path"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conversation_turn_duration_seconds",
			Help:    "Latency of a conversation turn",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		backendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_backend_failures_total",
			Help: "Generation backend failures, by error code",
		}, []string{"code"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) TurnHandled(path string, d time.Duration) {
	m.turnsTotal.WithLabelValues(path).Inc()
	m.turnDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) BackendFailure(code string) {
	m.backendFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	s := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, path, s).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, s).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
