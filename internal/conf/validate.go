package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tphakala/toastd/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// Unwrap lets callers match errors.ErrInvalidConfig
func (ve ValidationError) Unwrap() error {
	return errors.ErrInvalidConfig
}

// ErrorCategory implements errors.CategorizedError
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateToastSettings(&settings.Toast)...)
	ve.Errors = append(ve.Errors, validateRecoverySettings(&settings.Recovery)...)
	ve.Errors = append(ve.Errors, validatePerformanceSettings(&settings.Performance)...)
	ve.Errors = append(ve.Errors, validateAnalyticsSettings(&settings.Analytics)...)
	ve.Errors = append(ve.Errors, validateSentrySettings(&settings.Sentry)...)

	if settings.Datastore.Enabled && settings.Datastore.Path == "" {
		ve.Errors = append(ve.Errors, "datastore.path is required when the datastore is enabled")
	}
	if settings.Datastore.Retention < 0 {
		ve.Errors = append(ve.Errors, "datastore.retention must not be negative")
	}
	if settings.HTTP.Enabled && settings.HTTP.Listen == "" {
		ve.Errors = append(ve.Errors, "http.listen is required when the HTTP adapter is enabled")
	}
	if settings.Environment.ViewportWidth < 0 || settings.Environment.ViewportHeight < 0 {
		ve.Errors = append(ve.Errors, "environment viewport dimensions must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidPosition reports whether p names one of the four screen corners
func ValidPosition(p string) bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight:
		return true
	}
	return false
}

func validateToastSettings(s *ToastSettings) []string {
	var errs []string

	if s.MaxToasts < 1 {
		errs = append(errs, fmt.Sprintf("toast.max_toasts must be at least 1, got %d", s.MaxToasts))
	}
	if s.DefaultDuration < 0 {
		errs = append(errs, fmt.Sprintf("toast.default_duration must not be negative, got %s", s.DefaultDuration))
	}
	if !ValidPosition(s.DefaultPosition) {
		errs = append(errs, fmt.Sprintf("toast.default_position %q is not a screen corner", s.DefaultPosition))
	}
	if s.Eviction != EvictionNewest && s.Eviction != EvictionOldest {
		errs = append(errs, fmt.Sprintf("toast.eviction must be %q or %q, got %q", EvictionNewest, EvictionOldest, s.Eviction))
	}
	if s.SubscriberBuffer < 1 {
		errs = append(errs, fmt.Sprintf("toast.subscriber_buffer must be at least 1, got %d", s.SubscriberBuffer))
	}

	return errs
}

func validateRecoverySettings(s *RecoverySettings) []string {
	var errs []string

	for kind, strategy := range s.Strategies {
		if strategy.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("recovery.strategies.%s.max_retries must not be negative", kind))
		}
		if strategy.RetryDelay < 0 {
			errs = append(errs, fmt.Sprintf("recovery.strategies.%s.retry_delay must not be negative", kind))
		}
	}
	if s.MaxLogSize < 0 {
		errs = append(errs, "recovery.max_log_size must not be negative")
	}

	return errs
}

func validatePerformanceSettings(s *PerformanceSettings) []string {
	var errs []string

	for kind, threshold := range s.Thresholds {
		if threshold <= 0 {
			errs = append(errs, fmt.Sprintf("performance.thresholds.%s must be positive, got %s", kind, threshold))
		}
	}
	if s.MaxSamples < 0 {
		errs = append(errs, "performance.max_samples must not be negative")
	}

	return errs
}

func validateAnalyticsSettings(s *AnalyticsSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string

	if s.Endpoint == "" {
		errs = append(errs, "analytics.endpoint is required when analytics is enabled")
	} else if u, err := url.Parse(s.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("analytics.endpoint %q is not an http(s) URL", s.Endpoint))
	}
	if s.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("analytics.batch_size must be at least 1, got %d", s.BatchSize))
	}
	if s.FlushInterval <= 0 {
		errs = append(errs, "analytics.flush_interval must be positive")
	}

	return errs
}

func validateSentrySettings(s *SentrySettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string

	if s.DSN == "" {
		errs = append(errs, "sentry.dsn is required when sentry is enabled")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("sentry.sample_rate must be between 0 and 1, got %v", s.SampleRate))
	}

	return errs
}
