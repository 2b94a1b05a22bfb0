// Package engine assembles the toast store, the recovery controller and the
// performance monitor from settings and accepts presentation adapter events.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tphakala/toastd/internal/analytics"
	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/datastore"
	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/observability"
	"github.com/tphakala/toastd/internal/perfmon"
	"github.com/tphakala/toastd/internal/recovery"
	"github.com/tphakala/toastd/internal/telemetry"
	"github.com/tphakala/toastd/internal/timer"
	"github.com/tphakala/toastd/internal/toast"
)

const sentryFlushTimeout = 2 * time.Second

// Engine owns one toast store and the components that act on its toasts.
type Engine struct {
	settings *conf.Settings

	timers   *timer.Service
	store    *toast.Store
	monitor  *perfmon.Monitor
	recovery *recovery.Controller
	metrics  *observability.Metrics
	reporter *errors.SentryReporter
	tracker  *analytics.Tracker            // nil when analytics is disabled
	repo     *datastore.ErrorLogRepository // nil when the datastore is disabled

	// ctx bounds failure handling; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New builds an engine from settings. A nil settings uses conf.Default().
func New(settings *conf.Settings, opts ...Option) (*Engine, error) {
	if settings == nil {
		settings = conf.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	e := &Engine{settings: settings}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if err := e.build(o); err != nil {
		e.cancel()
		e.release()
		return nil, err
	}

	log.Info("engine initialized",
		logger.Int("max_toasts", settings.Toast.MaxToasts),
		logger.Bool("analytics", e.tracker != nil),
		logger.Bool("datastore", e.repo != nil),
		logger.Bool("sentry", e.reporter.IsEnabled()))
	return e, nil
}

func (e *Engine) build(o *options) error {
	s := e.settings
	e.timers = timer.New(o.clock)

	m, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryConfiguration).
			Build()
	}
	e.metrics = m

	e.reporter, err = telemetry.NewReporter(s, o.sentryTransport, log)
	if err != nil {
		return err
	}

	if s.Analytics.Enabled {
		trackerOpts := []analytics.Option{analytics.WithClock(o.clock)}
		if o.analyticsClient != nil {
			trackerOpts = append(trackerOpts, analytics.WithHTTPClient(o.analyticsClient))
		}
		e.tracker, err = analytics.New(analytics.Config{
			Endpoint:      s.Analytics.Endpoint,
			APIKey:        s.Analytics.APIKey,
			BatchSize:     s.Analytics.BatchSize,
			FlushInterval: s.Analytics.FlushInterval,
			Timeout:       s.Analytics.Timeout,
		}, trackerOpts...)
		if err != nil {
			return err
		}
	}

	if s.Datastore.Enabled {
		e.repo, err = datastore.OpenSQLite(s.Datastore.Path)
		if err != nil {
			return err
		}
		e.repo.SetMetrics(e.metrics.Datastore)
	}

	monitorOpts := []perfmon.Option{
		perfmon.WithClock(o.clock),
		perfmon.WithThresholds(s.Performance.Thresholds),
		perfmon.WithMaxSamples(s.Performance.MaxSamples),
		perfmon.WithIssueHandler(e.onPerformanceIssue),
		perfmon.WithRecorder(e.metrics.Performance),
	}
	if e.tracker != nil {
		monitorOpts = append(monitorOpts, perfmon.WithTracker(e.tracker))
	}
	e.monitor = perfmon.New(monitorOpts...)

	e.store = toast.NewStore(e.timers,
		toast.WithConfig(ToastConfig(s)),
		toast.WithRecorder(e.metrics.Toast),
		toast.WithIDGenerator(o.idGenerator),
		toast.WithRemovalHook(e.onToastRemoved))

	env := o.environment
	if env == nil {
		env = staticEnvironment(s)
	}
	renderer := o.renderer
	if renderer == nil {
		renderer = recovery.NoopRenderer{}
	}

	controllerOpts := []recovery.Option{
		recovery.WithMeasurer(e.monitor),
		recovery.WithReporter(e.reporter),
		recovery.WithEnvironment(env),
		recovery.WithRenderer(renderer),
		recovery.WithDismisser(e.store.Dismiss),
		recovery.WithToastLookup(e.exists),
		recovery.WithRecorder(e.metrics.Recovery),
		recovery.WithMaxLogSize(s.Recovery.MaxLogSize),
	}
	if e.tracker != nil {
		controllerOpts = append(controllerOpts, recovery.WithTracker(e.tracker))
	}
	if e.repo != nil {
		controllerOpts = append(controllerOpts, recovery.WithPersister(e.repo))
	}
	e.recovery = recovery.NewController(e.timers, controllerOpts...)
	e.recovery.AddCommonStrategies(PolicyOverrides(s))

	return nil
}

// ToastConfig maps settings onto the store configuration
func ToastConfig(s *conf.Settings) toast.Config {
	return toast.Config{
		MaxToasts:        s.Toast.MaxToasts,
		DefaultDuration:  s.Toast.DefaultDuration,
		DefaultPosition:  toast.Position(s.Toast.DefaultPosition),
		Eviction:         toast.EvictionPolicy(s.Toast.Eviction),
		SubscriberBuffer: s.Toast.SubscriberBuffer,
	}
}

// PolicyOverrides maps per-kind strategy settings onto recovery policies.
// Setting keys are lower case kinds, e.g. "animation_failure".
func PolicyOverrides(s *conf.Settings) map[recovery.Kind]recovery.Policy {
	out := make(map[recovery.Kind]recovery.Policy, len(s.Recovery.Strategies))
	for key, st := range s.Recovery.Strategies {
		out[recovery.Kind(strings.ToUpper(key))] = recovery.Policy{
			MaxRetries: st.MaxRetries,
			RetryDelay: st.RetryDelay,
		}
	}
	return out
}

func staticEnvironment(s *conf.Settings) recovery.StaticEnvironment {
	ua := s.Environment.UserAgent
	if ua == "" {
		version := s.Version
		if version == "" {
			version = "dev"
		}
		ua = fmt.Sprintf("toastd/%s", version)
	}
	return recovery.StaticEnvironment{
		UserAgent: ua,
		Viewport: recovery.Viewport{
			Width:  s.Environment.ViewportWidth,
			Height: s.Environment.ViewportHeight,
		},
	}
}

// Start prunes expired error log entries and begins periodic background work
func (e *Engine) Start() {
	if e.repo != nil && e.settings.Datastore.Retention > 0 {
		e.pruneErrorLog()
	}
	if e.tracker != nil {
		e.tracker.Start()
	}
}

func (e *Engine) pruneErrorLog() {
	before := e.timers.Now().Add(-e.settings.Datastore.Retention)
	removed, err := e.repo.Prune(e.ctx, before)
	if err != nil {
		log.Warn("failed to prune error log", logger.Error(err))
		return
	}
	if removed > 0 {
		log.Info("pruned error log",
			logger.Int64("removed", removed),
			logger.Time("before", before))
	}
}

// Store returns the toast store
func (e *Engine) Store() *toast.Store { return e.store }

// Recovery returns the error recovery controller
func (e *Engine) Recovery() *recovery.Controller { return e.recovery }

// Monitor returns the performance monitor
func (e *Engine) Monitor() *perfmon.Monitor { return e.monitor }

// Metrics returns the Prometheus collectors
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Timers returns the timer service shared by all components
func (e *Engine) Timers() *timer.Service { return e.timers }

// Settings returns the settings the engine was built from
func (e *Engine) Settings() *conf.Settings { return e.settings }

// ErrorLog returns the audit log. With the datastore enabled it reads the
// durable copy, which outlives restarts; limit keeps the newest entries.
func (e *Engine) ErrorLog(ctx context.Context, limit int) ([]recovery.ErrorLogEntry, error) {
	if e.repo != nil {
		return e.repo.List(ctx, datastore.ListOptions{Limit: limit})
	}
	entries := e.recovery.ErrorLog()
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (e *Engine) exists(id string) bool {
	_, ok := e.store.Get(id)
	return ok
}

// onToastRemoved drops the retry state of toasts that left the store
func (e *Engine) onToastRemoved(t toast.Toast, _ toast.RemovalReason) {
	if e.recovery != nil {
		e.recovery.Forget(t.ID)
	}
}

func (e *Engine) onPerformanceIssue(m perfmon.Metric) {
	threshold, _ := e.monitor.Threshold(m.Kind)
	fields := []logger.Field{
		logger.String("kind", m.Kind),
		logger.Duration("duration", m.Duration),
		logger.Duration("threshold", threshold),
	}
	if id, ok := m.Context["toast_id"].(string); ok {
		fields = append(fields, logger.String("toast_id", id))
	}
	log.Warn("performance threshold exceeded", fields...)
}

// Close stops background work, waits for in-flight failure handling and
// flushes analytics and Sentry. Active toasts are left in place.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()
		e.inflight.Wait()
		e.store.Close()

		var errs []error
		if e.tracker != nil {
			if err := e.tracker.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if e.repo != nil {
			if err := e.repo.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		telemetry.Flush(e.reporter.Hub(), sentryFlushTimeout)
		e.timers.Stop()

		e.closeErr = errors.Join(errs...)
		log.Info("engine closed")
	})
	return e.closeErr
}

// begin registers one in-flight failure; false once Close has started
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

// release frees whatever build managed to create before failing
func (e *Engine) release() {
	if e.repo != nil {
		_ = e.repo.Close()
	}
	if e.tracker != nil {
		_ = e.tracker.Close(context.Background())
	}
	if e.timers != nil {
		e.timers.Stop()
	}
}
