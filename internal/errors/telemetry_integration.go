package errors

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/getsentry/sentry-go"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Context keys recognised by the Sentry reporter
const (
	ContextErrorCode = "error_code"
	ContextToastID   = "toast_id"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporterConfig tunes report suppression. Toast errors, the reports
// carrying ContextErrorCode, are sent unconditionally unless ThrottleToastErrors is set.
type SentryReporterConfig struct {
	DedupeWindow        time.Duration // identical reports inside the window are dropped
	RateLimit           float64       // sustained reports per second
	Burst               int
	ThrottleToastErrors bool
}

// DefaultSentryReporterConfig returns the defaults used by the serve command
func DefaultSentryReporterConfig() SentryReporterConfig {
	return SentryReporterConfig{
		DedupeWindow: 30 * time.Second,
		RateLimit:    1,
		Burst:        10,
	}
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
	hub     *sentry.Hub
	seen    *cache.Cache
	limiter *rate.Limiter

	throttleToastErrors bool
}

// NewSentryReporter creates a Sentry reporter. A nil hub uses sentry.CurrentHub().
func NewSentryReporter(hub *sentry.Hub, enabled bool, cfg SentryReporterConfig) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = DefaultSentryReporterConfig().DedupeWindow
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &SentryReporter{
		enabled: enabled,
		hub:     hub,
		seen:    cache.New(cfg.DedupeWindow, 2*cfg.DedupeWindow),
		limiter: rate.NewLimiter(limit, cfg.Burst),

		throttleToastErrors: cfg.ThrottleToastErrors,
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr != nil && sr.enabled
}

// Hub returns the hub events are captured on
func (sr *SentryReporter) Hub() *sentry.Hub {
	return sr.hub
}

// ReportError reports an enhanced error to Sentry with privacy protection.
// Duplicate reports inside the dedupe window and reports over the rate limit
// are dropped, except toast errors when ThrottleToastErrors is off.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.IsEnabled() || ee == nil || ee.IsReported() {
		return
	}

	code, _ := ee.GetContext()[ContextErrorCode].(string)
	if code == "" || sr.throttleToastErrors {
		if !sr.admit(ee, code) {
			return
		}
	}

	scrubbedMessage := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.GetMessage()))
	errorTitle := generateErrorTitle(ee)
	level := getErrorLevel(ee.Category)

	sr.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_title", errorTitle)
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if code != "" {
			scope.SetTag("errorType", "toast")
			scope.SetTag("errorCode", code)
		}

		for key, value := range ee.GetContext() {
			if strValue, ok := value.(string); ok {
				value = scrubMessageForPrivacy(strValue)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		scope.SetLevel(level)
		scope.SetFingerprint([]string{errorTitle, ee.Component, string(ee.Category), code})

		event := sentry.NewEvent()
		event.Message = scrubbedMessage
		event.Level = level
		event.Timestamp = ee.Timestamp
		event.Exception = []sentry.Exception{{
			Type:  errorTitle,
			Value: scrubbedMessage,
		}}

		sr.hub.CaptureEvent(event)
	})

	ee.MarkReported()
}

// admit applies deduplication and rate limiting. A duplicate is marked reported.
func (sr *SentryReporter) admit(ee *EnhancedError, code string) bool {
	toastID, _ := ee.GetContext()[ContextToastID].(string)
	dedupeKey := strings.Join([]string{ee.Component, string(ee.Category), code, toastID, ee.GetMessage()}, "|")
	if err := sr.seen.Add(dedupeKey, struct{}{}, cache.DefaultExpiration); err != nil {
		ee.MarkReported()
		return false
	}
	return sr.limiter.Allow()
}

// generateErrorTitle builds "Recovery Render Error ANIMATION_FAILURE" style titles
func generateErrorTitle(ee *EnhancedError) string {
	var titleParts []string

	if ee.Component != "" && ee.Component != ComponentUnknown {
		titleParts = append(titleParts, titleCase(ee.Component))
	}

	if categoryTitle := formatCategoryForTitle(ee.Category); categoryTitle != "" {
		titleParts = append(titleParts, categoryTitle)
	}

	if code, ok := ee.Context[ContextErrorCode].(string); ok && code != "" {
		titleParts = append(titleParts, code)
	}

	if len(titleParts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}

	return strings.Join(titleParts, " ")
}

// formatCategoryForTitle converts error categories to human-readable titles
func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryValidation:
		return "Validation Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryRender:
		return "Render Error"
	case CategoryRecovery:
		return "Recovery Error"
	case CategoryNetwork:
		return "Network Error"
	case CategoryDatabase:
		return "Database Error"
	case CategoryAnalytics:
		return "Analytics Error"
	default:
		return string(category)
	}
}

// titleCase capitalizes the first letter of a string
func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns the Sentry level for a category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryRender, CategoryNetwork, CategoryHTTP, CategoryAnalytics, CategoryTimeout:
		return sentry.LevelWarning // usually transient or recoverable
	default:
		return sentry.LevelError
	}
}

// PrivacyScrubber is a function type for privacy scrubbing
type PrivacyScrubber func(string) string

var globalPrivacyScrubber PrivacyScrubber

// SetPrivacyScrubber sets the global privacy scrubbing function
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	globalPrivacyScrubber = scrubber
}

func scrubMessageForPrivacy(message string) string {
	if globalPrivacyScrubber != nil {
		return globalPrivacyScrubber(message)
	}
	return basicURLScrub(message)
}

var (
	urlQueryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	apiKeyRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)bearer\s+\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// basicURLScrub strips query strings and API keys from messages
func basicURLScrub(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	for _, re := range apiKeyRegexes {
		scrubbed = re.ReplaceAllString(scrubbed, "[API_KEY_REDACTED]")
	}
	return scrubbed
}
