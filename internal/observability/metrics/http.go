package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the HTTP adapter.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec   // Requests by method, route and status code
	RequestDuration *prometheus.HistogramVec // Request latency by method and route
	StreamsActive   prometheus.Gauge         // Open change streams
	StreamEvents    *prometheus.CounterVec   // Events written to change streams by type

	registry *prometheus.Registry
}

// NewHTTPMetrics creates HTTP metrics and registers them on registry.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"}, // route is the registered pattern, /api/v1/toasts/:id
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time taken to serve HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "streams_active",
			Help:      "Number of open server-sent event change streams",
		},
	)

	m.StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "stream_events_total",
			Help:      "Total number of events written to change streams",
		},
		[]string{"event"}, // event: snapshot, added, updated, removed
	)
}

// RecordRequest records one served request
func (m *HTTPMetrics) RecordRequest(method, route string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StreamOpened increments the open stream gauge
func (m *HTTPMetrics) StreamOpened() {
	m.StreamsActive.Inc()
}

// StreamClosed decrements the open stream gauge
func (m *HTTPMetrics) StreamClosed() {
	m.StreamsActive.Dec()
}

// RecordStreamEvent counts an event written to a stream
func (m *HTTPMetrics) RecordStreamEvent(event string) {
	m.StreamEvents.WithLabelValues(event).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	m.RequestDuration.Collect(ch)
	m.StreamsActive.Collect(ch)
	m.StreamEvents.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	m.RequestDuration.Describe(ch)
	m.StreamsActive.Describe(ch)
	m.StreamEvents.Describe(ch)
}
