// Package observability wires the Prometheus collectors of toastd into one registry.
// Sentry error telemetry is handled in the telemetry package.
package observability

import (
	"fmt"

	"github.com/tphakala/toastd/internal/logger"
)

// Package-level cached logger instance
var log = logger.Global().Module("metrics")

// promLogger adapts the module logger to promhttp.Logger
type promLogger struct{}

func (promLogger) Println(v ...any) {
	log.Error("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
