// Package metrics holds the Prometheus collectors for the platform core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the application collectors behind a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	sessionsCreated prometheus.Counter
	sessionsRevoked prometheus.Counter
	sessionsSwept   prometheus.Counter

	commands *prometheus.CounterVec

	subscribers   prometheus.Gauge
	framesDropped prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stagewire",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagewire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stagewire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),

		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagewire",
			Subsystem: "control",
			Name:      "sessions_created_total",
			Help:      "Total number of control sessions created.",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagewire",
			Subsystem: "control",
			Name:      "sessions_revoked_total",
			Help:      "Total number of successful session revocations.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagewire",
			Subsystem: "control",
			Name:      "sessions_swept_total",
			Help:      "Total number of dead session records evicted by the sweep.",
		}),

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagewire",
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Total number of command submissions by outcome.",
		}, []string{"outcome"}),

		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stagewire",
			Subsystem: "control",
			Name:      "subscribers",
			Help:      "Current number of session subscriptions.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stagewire",
			Subsystem: "control",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped on slow or closed subscriber connections.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.sessionsCreated,
		m.sessionsRevoked,
		m.sessionsSwept,
		m.commands,
		m.subscribers,
		m.framesDropped,
	)

	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight increments the in-flight request gauge.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight decrements the in-flight request gauge.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSessionCreated counts a created session.
func (m *Metrics) RecordSessionCreated() { m.sessionsCreated.Inc() }

// RecordSessionRevoked counts a successful revocation.
func (m *Metrics) RecordSessionRevoked() { m.sessionsRevoked.Inc() }

// RecordSessionsSwept counts records evicted by the sweep.
func (m *Metrics) RecordSessionsSwept(n int) { m.sessionsSwept.Add(float64(n)) }

// RecordCommand counts a command submission outcome ("accepted" or an error code).
func (m *Metrics) RecordCommand(outcome string) { m.commands.WithLabelValues(outcome).Inc() }

// SubscriberAdded increments the subscription gauge.
func (m *Metrics) SubscriberAdded() { m.subscribers.Inc() }

// SubscriberRemoved decrements the subscription gauge.
func (m *Metrics) SubscriberRemoved() { m.subscribers.Dec() }

// RecordFrameDropped counts a frame dropped on a dead or slow connection.
func (m *Metrics) RecordFrameDropped() { m.framesDropped.Inc() }
