package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/toastd/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Toast       *metrics.ToastMetrics
	Recovery    *metrics.RecoveryMetrics
	Performance *metrics.PerformanceMetrics
	HTTP        *metrics.HTTPMetrics
	Datastore   *metrics.DatastoreMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry,
// so independent engines (and tests) never collide on registration.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	toastMetrics, err := metrics.NewToastMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create toast metrics: %w", err)
	}

	recoveryMetrics, err := metrics.NewRecoveryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create recovery metrics: %w", err)
	}

	performanceMetrics, err := metrics.NewPerformanceMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create performance metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create http metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	return &Metrics{
		registry:    registry,
		Toast:       toastMetrics,
		Recovery:    recoveryMetrics,
		Performance: performanceMetrics,
		HTTP:        httpMetrics,
		Datastore:   datastoreMetrics,
	}, nil
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
