package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/toastd/internal/logger"
)

// SetDefaults registers default values for every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("toast.max_toasts", 3)
	v.SetDefault("toast.default_duration", 5*time.Second)
	v.SetDefault("toast.default_position", PositionBottomRight)
	v.SetDefault("toast.eviction", EvictionNewest)
	v.SetDefault("toast.subscriber_buffer", 64)

	// Per-kind retry policies
	v.SetDefault("recovery.strategies.webgl_context_lost.max_retries", 2)
	v.SetDefault("recovery.strategies.webgl_context_lost.retry_delay", time.Second)
	v.SetDefault("recovery.strategies.shader_compilation.max_retries", 1)
	v.SetDefault("recovery.strategies.shader_compilation.retry_delay", time.Duration(0))
	v.SetDefault("recovery.strategies.animation_failure.max_retries", 3)
	v.SetDefault("recovery.strategies.animation_failure.retry_delay", 500*time.Millisecond)
	v.SetDefault("recovery.strategies.gesture_failure.max_retries", 0)
	v.SetDefault("recovery.strategies.gesture_failure.retry_delay", time.Duration(0))
	v.SetDefault("recovery.max_log_size", 1000)

	// Latency budgets
	v.SetDefault("performance.thresholds.animation", 16*time.Millisecond)
	v.SetDefault("performance.thresholds.render", 50*time.Millisecond)
	v.SetDefault("performance.thresholds.gesture", 100*time.Millisecond)
	v.SetDefault("performance.thresholds.webgl", 33*time.Millisecond)
	v.SetDefault("performance.max_samples", 10000)

	v.SetDefault("environment.user_agent", "")
	v.SetDefault("environment.viewport_width", 0)
	v.SetDefault("environment.viewport_height", 0)

	v.SetDefault("analytics.enabled", false)
	v.SetDefault("analytics.endpoint", "")
	v.SetDefault("analytics.api_key", "")
	v.SetDefault("analytics.batch_size", 10)
	v.SetDefault("analytics.flush_interval", 5*time.Second)
	v.SetDefault("analytics.timeout", 10*time.Second)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("sentry.debug", false)
	v.SetDefault("sentry.dedupe_window", 30*time.Second)
	v.SetDefault("sentry.rate_limit", 1.0)
	v.SetDefault("sentry.burst", 10)
	v.SetDefault("sentry.throttle_toast_errors", false)

	v.SetDefault("datastore.enabled", false)
	v.SetDefault("datastore.path", "toastd.db")
	v.SetDefault("datastore.retention", 30*24*time.Hour)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:8080")
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.burst", 40)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
}
