package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMetrics contains Prometheus metrics for instrumented operations.
// It implements perfmon.Recorder.
type PerformanceMetrics struct {
	OperationDuration *prometheus.HistogramVec // Measured durations by operation kind
	BreachesTotal     *prometheus.CounterVec   // Samples over their kind's threshold

	registry *prometheus.Registry
}

// NewPerformanceMetrics creates performance metrics and registers them on registry.
func NewPerformanceMetrics(registry *prometheus.Registry) (*PerformanceMetrics, error) {
	m := &PerformanceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register performance metrics: %w", err)
	}
	return m, nil
}

func (m *PerformanceMetrics) initMetrics() {
	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of instrumented presentation operations by kind",
			Buckets:   DurationBuckets,
		},
		[]string{"kind"},
	)

	m.BreachesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "threshold_breaches_total",
			Help:      "Total number of measured operations that exceeded their latency budget",
		},
		[]string{"kind"},
	)
}

// ObserveDuration records one measured operation.
func (m *PerformanceMetrics) ObserveDuration(kind string, d time.Duration) {
	m.OperationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordBreach records a sample over its threshold.
func (m *PerformanceMetrics) RecordBreach(kind string) {
	m.BreachesTotal.WithLabelValues(kind).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *PerformanceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationDuration.Collect(ch)
	m.BreachesTotal.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *PerformanceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationDuration.Describe(ch)
	m.BreachesTotal.Describe(ch)
}
