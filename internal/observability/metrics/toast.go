// Package metrics provides custom Prometheus metrics for toastd.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ToastMetrics contains Prometheus metrics for the toast store.
// It implements toast.Recorder.
type ToastMetrics struct {
	EnqueuedTotal       *prometheus.CounterVec // Enqueued toasts by priority
	DismissedTotal      *prometheus.CounterVec // Removed toasts by reason
	ChangesDroppedTotal prometheus.Counter     // Change events dropped on full subscriber buffers
	Active              prometheus.Gauge       // Toasts in the active set
	Paused              prometheus.Gauge       // Active toasts currently paused

	registry *prometheus.Registry
}

// NewToastMetrics creates toast store metrics and registers them on registry.
func NewToastMetrics(registry *prometheus.Registry) (*ToastMetrics, error) {
	m := &ToastMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register toast metrics: %w", err)
	}
	return m, nil
}

func (m *ToastMetrics) initMetrics() {
	m.EnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "toasts_enqueued_total",
			Help:      "Total number of toasts enqueued by priority",
		},
		[]string{"priority"},
	)

	m.DismissedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "toasts_dismissed_total",
			Help:      "Total number of toasts removed from the active set by reason",
		},
		[]string{"reason"}, // reason: dismissed, expired, evicted, cleared
	)

	m.ChangesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "change_events_dropped_total",
			Help:      "Total number of change events dropped because a subscriber buffer was full",
		},
	)

	m.Active = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "toasts_active",
			Help:      "Number of toasts currently visible",
		},
	)

	m.Paused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "toasts_paused",
			Help:      "Number of visible toasts whose auto-dismiss is paused",
		},
	)
}

// RecordEnqueued records an enqueued toast.
func (m *ToastMetrics) RecordEnqueued(priority string) {
	m.EnqueuedTotal.WithLabelValues(priority).Inc()
}

// RecordRemoved records a toast leaving the active set.
func (m *ToastMetrics) RecordRemoved(reason string) {
	m.DismissedTotal.WithLabelValues(reason).Inc()
}

// RecordDroppedChange records a change event lost to a slow subscriber.
func (m *ToastMetrics) RecordDroppedChange() {
	m.ChangesDroppedTotal.Inc()
}

// SetActive sets the active and paused gauges.
func (m *ToastMetrics) SetActive(active, paused int) {
	m.Active.Set(float64(active))
	m.Paused.Set(float64(paused))
}

// Collect implements the prometheus.Collector interface.
func (m *ToastMetrics) Collect(ch chan<- prometheus.Metric) {
	m.EnqueuedTotal.Collect(ch)
	m.DismissedTotal.Collect(ch)
	m.ChangesDroppedTotal.Collect(ch)
	m.Active.Collect(ch)
	m.Paused.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *ToastMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.EnqueuedTotal.Describe(ch)
	m.DismissedTotal.Describe(ch)
	m.ChangesDroppedTotal.Describe(ch)
	m.Active.Describe(ch)
	m.Paused.Describe(ch)
}
