package engine

import (
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"

	"github.com/tphakala/toastd/internal/httpclient"
	"github.com/tphakala/toastd/internal/recovery"
)

type options struct {
	clock           clockwork.Clock
	renderer        recovery.Renderer
	environment     recovery.EnvironmentProvider
	sentryTransport sentry.Transport
	analyticsClient *httpclient.Client
	idGenerator     func() string
}

// Option configures an Engine
type Option func(*options)

// WithClock drives every timer, backoff and measurement; tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRenderer sets the drawing capability used by the built-in recovery strategies
func WithRenderer(r recovery.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithEnvironment replaces the static environment built from settings
func WithEnvironment(p recovery.EnvironmentProvider) Option {
	return func(o *options) { o.environment = p }
}

// WithSentryTransport routes Sentry events through t
func WithSentryTransport(t sentry.Transport) Option {
	return func(o *options) { o.sentryTransport = t }
}

// WithAnalyticsClient sets the HTTP client used by the analytics tracker
func WithAnalyticsClient(c *httpclient.Client) Option {
	return func(o *options) { o.analyticsClient = c }
}

// WithIDGenerator replaces the toast id generator
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.idGenerator = fn }
}
