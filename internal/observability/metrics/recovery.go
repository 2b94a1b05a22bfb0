package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RecoveryMetrics contains Prometheus metrics for the error recovery controller.
// It implements recovery.Recorder.
type RecoveryMetrics struct {
	ErrorsHandledTotal *prometheus.CounterVec // Handled errors by kind and whether a strategy exists
	AttemptsTotal      *prometheus.CounterVec // Recover calls by kind and result
	FallbacksTotal     *prometheus.CounterVec // Fallbacks fired by kind

	registry *prometheus.Registry
}

// NewRecoveryMetrics creates recovery metrics and registers them on registry.
func NewRecoveryMetrics(registry *prometheus.Registry) (*RecoveryMetrics, error) {
	m := &RecoveryMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recovery metrics: %w", err)
	}
	return m, nil
}

func (m *RecoveryMetrics) initMetrics() {
	m.ErrorsHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_handled_total",
			Help:      "Total number of presentation failures handled by error kind",
		},
		[]string{"kind", "registered"},
	)

	m.AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recovery_attempts_total",
			Help:      "Total number of recovery attempts by error kind and result",
		},
		[]string{"kind", "result"}, // result: success, error
	)

	m.FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "recovery_fallbacks_total",
			Help:      "Total number of fallbacks fired by error kind",
		},
		[]string{"kind"},
	)
}

// RecordHandled records an error passed to the controller.
func (m *RecoveryMetrics) RecordHandled(kind string, registered bool) {
	m.ErrorsHandledTotal.WithLabelValues(kind, strconv.FormatBool(registered)).Inc()
}

// RecordAttempt records one recover call.
func (m *RecoveryMetrics) RecordAttempt(kind, result string) {
	m.AttemptsTotal.WithLabelValues(kind, result).Inc()
}

// RecordFallback records a fired fallback.
func (m *RecoveryMetrics) RecordFallback(kind string) {
	m.FallbacksTotal.WithLabelValues(kind).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *RecoveryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ErrorsHandledTotal.Collect(ch)
	m.AttemptsTotal.Collect(ch)
	m.FallbacksTotal.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *RecoveryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ErrorsHandledTotal.Describe(ch)
	m.AttemptsTotal.Describe(ch)
	m.FallbacksTotal.Describe(ch)
}
