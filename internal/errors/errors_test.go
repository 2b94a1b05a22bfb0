package errors_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/telemetry"
)

type kindError struct{}

func (kindError) Error() string                       { return "categorized" }
func (kindError) ErrorCategory() errors.ErrorCategory { return errors.CategoryAnalytics }

func TestBuilder_Defaults(t *testing.T) {
	t.Parallel()

	ee := errors.New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, errors.ComponentUnknown, ee.Component)
	assert.Equal(t, errors.CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuilder_FluentFields(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ee := errors.Newf("recover failed for %s", "t1").
		Component("recovery").
		Category(errors.CategoryRecovery).
		Priority(errors.PriorityHigh).
		Context("toast_id", "t1").
		Timing("recover", 120*time.Millisecond).
		At(func() time.Time { return fixed }).
		Build()

	assert.Equal(t, "recovery", ee.Component)
	assert.Equal(t, errors.CategoryRecovery, ee.Category)
	assert.Equal(t, errors.PriorityHigh, ee.Priority)
	assert.Equal(t, fixed, ee.Timestamp)

	ctx := ee.GetContext()
	assert.Equal(t, "t1", ctx["toast_id"])
	assert.Equal(t, "recover", ctx["operation"])
	assert.EqualValues(t, 120, ctx["duration_ms"])

	// GetContext returns a copy
	ctx["toast_id"] = "mutated"
	assert.Equal(t, "t1", ee.GetContext()["toast_id"])
}

func TestBuilder_InvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()
	ee := errors.Newf("x").Priority("urgent-ish").Build()
	assert.Equal(t, errors.PriorityMedium, ee.Priority)
}

func TestBuilder_InheritsCategory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CategoryAnalytics, errors.New(fmt.Errorf("wrap: %w", kindError{})).Build().Category)

	inner := errors.Newf("db down").Category(errors.CategoryDatabase).Build()
	assert.Equal(t, errors.CategoryDatabase, errors.New(fmt.Errorf("persist: %w", inner)).Build().Category)
}

func TestIsAndCategoryHelpers(t *testing.T) {
	t.Parallel()

	wrapped := errors.New(fmt.Errorf("dismiss: %w", errors.ErrToastNotFound)).
		Category(errors.CategoryNotFound).
		Build()

	assert.True(t, errors.Is(wrapped, errors.ErrToastNotFound))
	assert.True(t, errors.IsNotFound(wrapped))
	assert.True(t, errors.IsCategory(wrapped, errors.CategoryNotFound))
	assert.False(t, errors.IsCategory(fmt.Errorf("plain"), errors.CategoryNotFound))
	assert.Equal(t, errors.CategoryNotFound, errors.CategoryOf(fmt.Errorf("outer: %w", wrapped)))
	assert.Equal(t, errors.CategoryGeneric, errors.CategoryOf(fmt.Errorf("plain")))

	// EnhancedErrors match each other by category
	other := errors.Newf("other").Category(errors.CategoryNotFound).Build()
	assert.ErrorIs(t, wrapped, other)

	joined := errors.Join(errors.NewStd("a"), errors.ErrInvalidConfig)
	assert.ErrorIs(t, joined, errors.ErrInvalidConfig)
}

func newTestReporter(t *testing.T, cfg errors.SentryReporterConfig) (*errors.SentryReporter, *telemetry.MockTransport) {
	t.Helper()

	transport := telemetry.NewMockTransport()
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:        "https://public@sentry.example.com/1",
		Transport:  transport,
		SampleRate: 1.0,
	})
	require.NoError(t, err)

	hub := sentry.NewHub(client, sentry.NewScope())
	return errors.NewSentryReporter(hub, true, cfg), transport
}

func toastError(code, msg string) *errors.EnhancedError {
	return toastErrorFor("t1", code, msg)
}

func toastErrorFor(toastID, code, msg string) *errors.EnhancedError {
	return errors.Newf("%s", msg).
		Component("recovery").
		Category(errors.CategoryRender).
		Context(errors.ContextErrorCode, code).
		Context(errors.ContextToastID, toastID).
		Build()
}

func TestSentryReporter_TagsToastErrors(t *testing.T) {
	t.Parallel()

	reporter, transport := newTestReporter(t, errors.DefaultSentryReporterConfig())
	reporter.ReportError(toastError("ANIMATION_FAILURE", "spring diverged"))

	require.Eventually(t, func() bool { return transport.Count() == 1 }, time.Second, 10*time.Millisecond)
	event := transport.Events()[0]

	assert.Equal(t, "toast", event.Tags["errorType"])
	assert.Equal(t, "ANIMATION_FAILURE", event.Tags["errorCode"])
	assert.Equal(t, "recovery", event.Tags["component"])
	assert.Equal(t, string(errors.CategoryRender), event.Tags["category"])
	require.Len(t, event.Exception, 1)
	assert.Equal(t, "Recovery Render Error ANIMATION_FAILURE", event.Exception[0].Type)
	assert.Contains(t, event.Message, "spring diverged")
}

func TestSentryReporter_DedupesWithinWindow(t *testing.T) {
	t.Parallel()

	reporter, transport := newTestReporter(t, errors.SentryReporterConfig{
		DedupeWindow:        time.Minute,
		ThrottleToastErrors: true,
	})

	reporter.ReportError(toastError("WEBGL_CONTEXT_LOST", "lost"))
	reporter.ReportError(toastError("WEBGL_CONTEXT_LOST", "lost"))
	reporter.ReportError(toastError("SHADER_COMPILATION", "lost"))
	reporter.ReportError(toastErrorFor("t2", "WEBGL_CONTEXT_LOST", "lost"))

	require.Eventually(t, func() bool { return transport.Count() == 3 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return transport.Count() > 3 }, 50*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, transport.WithErrorCode("WEBGL_CONTEXT_LOST"), 2, "other toasts are not duplicates")
	assert.Len(t, transport.WithErrorCode("SHADER_COMPILATION"), 1)
}

func TestSentryReporter_ToastErrorsUnconditionalByDefault(t *testing.T) {
	t.Parallel()

	reporter, transport := newTestReporter(t, errors.SentryReporterConfig{
		DedupeWindow: time.Minute,
		RateLimit:    0.001,
		Burst:        1,
	})

	for _, id := range []string{"toast-a", "toast-b", "toast-c", "toast-a"} {
		reporter.ReportError(toastErrorFor(id, "SOUND_FAILURE", "audio device busy"))
	}

	require.Eventually(t, func() bool { return transport.Count() == 4 }, time.Second, 10*time.Millisecond)
}

func TestSentryReporter_DedupesOtherErrorsByDefault(t *testing.T) {
	t.Parallel()

	reporter, transport := newTestReporter(t, errors.DefaultSentryReporterConfig())

	for range 3 {
		reporter.ReportError(errors.Newf("disk full").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build())
	}

	require.Eventually(t, func() bool { return transport.Count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return transport.Count() > 1 }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestSentryReporter_RateLimited(t *testing.T) {
	t.Parallel()

	reporter, transport := newTestReporter(t, errors.SentryReporterConfig{
		DedupeWindow:        time.Minute,
		RateLimit:           0.001,
		Burst:               2,
		ThrottleToastErrors: true,
	})

	for i := range 5 {
		reporter.ReportError(toastError("ANIMATION_FAILURE", fmt.Sprintf("failure %d", i)))
	}

	require.Eventually(t, func() bool { return transport.Count() == 2 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return transport.Count() > 2 }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestSentryReporter_SkipsAlreadyReported(t *testing.T) {
	t.Parallel()

	reporter, transport := newTestReporter(t, errors.DefaultSentryReporterConfig())
	ee := toastError("ANIMATION_FAILURE", "once")
	ee.MarkReported()
	reporter.ReportError(ee)

	assert.Never(t, func() bool { return transport.Count() > 0 }, 50*time.Millisecond, 10*time.Millisecond)
}
