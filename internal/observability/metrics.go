package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "helpdesk"

// Metrics groups the Prometheus collectors exported by the service.
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	realtimeClients  prometheus.Gauge
	realtimeDropped  prometheus.Counter
	realtimeMessages *prometheus.CounterVec
}

// NewMetrics builds collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications produced by the fan-out, by type and outcome.",
		}, []string{"type", "outcome"}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_clients",
			Help:      "Connected websocket clients.",
		}),
		realtimeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_messages_total",
			Help:      "Realtime messages dropped because a client buffer was full.",
		}),
		realtimeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_total",
			Help:      "Realtime events delivered to clients, by event name.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.errors,
		m.notifications,
		m.realtimeClients,
		m.realtimeDropped,
		m.realtimeMessages,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordNotification counts a fan-out outcome ("delivered" or "failed").
func (m *Metrics) RecordNotification(notificationType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, outcome).Inc()
}

// RealtimeClientConnected adjusts the connected client gauge.
func (m *Metrics) RealtimeClientConnected(delta int) {
	if m == nil {
		return
	}
	m.realtimeClients.Add(float64(delta))
}

// RealtimeDelivered counts a frame queued for a client.
func (m *Metrics) RealtimeDelivered(event string) {
	if m == nil {
		return
	}
	m.realtimeMessages.WithLabelValues(event).Inc()
}

// RealtimeDropped counts a frame dropped for a slow client.
func (m *Metrics) RealtimeDropped() {
	if m == nil {
		return
	}
	m.realtimeDropped.Inc()
}
