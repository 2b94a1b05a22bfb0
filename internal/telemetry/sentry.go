// Package telemetry initialises the Sentry client used as the external error sink.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/privacy"
)

// sensitive contexts stripped before events leave the process
var privacyContexts = []string{"device", "os", "runtime"}

// NewHub creates a Sentry hub for the given settings. A nil transport uses the
// SDK's HTTP transport.
func NewHub(settings *conf.Settings, transport sentry.Transport) (*sentry.Hub, error) {
	opts := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       settings.Sentry.SampleRate,
		Debug:            settings.Sentry.Debug,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("toastd@%s", settings.Version),
		BeforeSend:       beforeSend,
		Transport:        transport,
		DisableMetrics:   true, // metrics go to Prometheus
	}

	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return sentry.NewHub(client, sentry.NewScope()), nil
}

// NewReporter builds the error sink from settings. With Sentry disabled it
// returns a reporter that reports nothing.
func NewReporter(settings *conf.Settings, transport sentry.Transport, log logger.Logger) (*errors.SentryReporter, error) {
	cfg := errors.SentryReporterConfig{
		DedupeWindow: settings.Sentry.DedupeWindow,
		RateLimit:    settings.Sentry.RateLimit,
		Burst:        settings.Sentry.Burst,

		ThrottleToastErrors: settings.Sentry.ThrottleToastErrors,
	}

	if !settings.Sentry.Enabled {
		return errors.NewSentryReporter(sentry.NewHub(nil, sentry.NewScope()), false, cfg), nil
	}

	hub, err := NewHub(settings, transport)
	if err != nil {
		return nil, err
	}

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	if log != nil {
		log.Info("sentry telemetry enabled",
			logger.String("environment", settings.Sentry.Environment),
			logger.Float64("sample_rate", settings.Sentry.SampleRate))
	}

	return errors.NewSentryReporter(hub, true, cfg), nil
}

// Flush waits for buffered events to be delivered.
func Flush(hub *sentry.Hub, timeout time.Duration) bool {
	if hub == nil || hub.Client() == nil {
		return true
	}
	return hub.Flush(timeout)
}

// beforeSend strips host identifying data from every event
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	for _, key := range privacyContexts {
		delete(event.Contexts, key)
	}
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	return event
}
