package recovery

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/perfmon"
	"github.com/tphakala/toastd/internal/timer"
)

// ErrorLogEntry is one audited failure
type ErrorLogEntry struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	ToastID         string         `json:"toast_id,omitempty"`
	Kind            Kind           `json:"kind"`
	Message         string         `json:"message"`
	Context         map[string]any `json:"context,omitempty"`
	Environment     Environment    `json:"environment"`
	RecoveryAttempt int            `json:"recovery_attempt"` // recover calls already made for this occurrence
}

// Measurer times recover calls. Implemented by perfmon.Monitor.
type Measurer interface {
	MeasureAsync(ctx context.Context, kind string, fn func(context.Context) error, metadata map[string]any) error
}

// Recorder receives recovery metrics. Implemented by metrics.RecoveryMetrics.
type Recorder interface {
	RecordHandled(kind string, registered bool)
	RecordAttempt(kind, result string)
	RecordFallback(kind string)
}

// Tracker forwards handled errors to analytics
type Tracker interface {
	TrackError(kind, message string, metadata map[string]any)
}

// Persister keeps a durable copy of the error log
type Persister interface {
	SaveErrorLogEntry(ctx context.Context, entry ErrorLogEntry) error
}

// occurrenceKey identifies the retry state of one failure kind on one toast
type occurrenceKey struct {
	toastID string
	kind    Kind
}

// occurrence serializes the retries of one (toast, kind) pair.
// attempts is written under mu but may be read without it.
type occurrence struct {
	mu            sync.Mutex
	attempts      atomic.Int32
	fallbackFired bool
}

// Controller applies per-kind retry strategies to reported failures.
type Controller struct {
	timers     *timer.Service
	measurer   Measurer
	reporter   errors.TelemetryReporter
	env        EnvironmentProvider
	renderer   Renderer
	dismiss    func(id string) bool
	exists     func(id string) bool
	recorder   Recorder
	tracker    Tracker
	persister  Persister
	maxLogSize int

	mu          sync.Mutex
	strategies  map[Kind]*strategy
	occurrences map[occurrenceKey]*occurrence
	errorLog    []ErrorLogEntry
}

// Option configures a Controller
type Option func(*Controller)

// WithMeasurer times every recover call under perfmon.KindRecovery
func WithMeasurer(m Measurer) Option {
	return func(c *Controller) { c.measurer = m }
}

// WithReporter sets the external error sink
func WithReporter(r errors.TelemetryReporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithEnvironment sets the environment provider
func WithEnvironment(p EnvironmentProvider) Option {
	return func(c *Controller) {
		if p != nil {
			c.env = p
		}
	}
}

// WithRenderer sets the renderer used by the built-in strategies
func WithRenderer(r Renderer) Option {
	return func(c *Controller) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithDismisser sets the action used by built-in fallbacks
func WithDismisser(fn func(id string) bool) Option {
	return func(c *Controller) { c.dismiss = fn }
}

// WithToastLookup lets the controller drop attempts for toasts that are gone
func WithToastLookup(fn func(id string) bool) Option {
	return func(c *Controller) { c.exists = fn }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithTracker sets the analytics tracker
func WithTracker(t Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithPersister sets the durable error log sink
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persister = p }
}

// WithMaxLogSize bounds the in-memory error log; the oldest entries go first. 0 keeps all.
func WithMaxLogSize(n int) Option {
	return func(c *Controller) { c.maxLogSize = max(0, n) }
}

// NewController creates a controller without strategies.
func NewController(timers *timer.Service, opts ...Option) *Controller {
	if timers == nil {
		timers = timer.New(nil)
	}
	c := &Controller{
		timers:      timers,
		env:         StaticEnvironment{},
		renderer:    NoopRenderer{},
		strategies:  make(map[Kind]*strategy),
		occurrences: make(map[occurrenceKey]*occurrence),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.measurer == nil {
		c.measurer = perfmon.New(perfmon.WithClock(timers.Clock()))
	}
	return c
}

// AddStrategy registers or replaces the strategy of kind. Unset options default to
// DefaultMaxRetries retries, DefaultRetryDelay, no fallback and always retrying.
// A nil recoverFn makes the strategy observational: failures go straight to the fallback.
func (c *Controller) AddStrategy(kind Kind, recoverFn RecoverFunc, opts ...StrategyOption) {
	s := &strategy{
		policy:      Policy{MaxRetries: DefaultMaxRetries, RetryDelay: DefaultRetryDelay},
		recover:     recoverFn,
		shouldRetry: alwaysRetry,
	}
	for _, opt := range opts {
		opt(s)
	}

	c.mu.Lock()
	c.strategies[kind] = s
	c.mu.Unlock()

	log.Debug("recovery strategy registered",
		logger.String("kind", string(kind)),
		logger.Int("max_retries", s.policy.MaxRetries),
		logger.Duration("retry_delay", s.policy.RetryDelay))
}

// Policy returns the retry budget registered for kind
func (c *Controller) Policy(kind Kind) (Policy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.strategies[kind]
	if !ok {
		return Policy{}, false
	}
	return s.policy, true
}

// HandleError audits a failure of toastID and then runs the strategy of its kind.
//
// The failure is logged, reported and persisted before any recovery is tried.
// With a strategy, each attempt waits the retry delay and calls recover until one
// succeeds or the budget of MaxRetries+1 attempts is spent; the fallback then runs
// at most once per occurrence until ResetRetryCount. Attempts for the same toast and
// kind never overlap. The call blocks for the backoff; ctx only aborts the wait.
func (c *Controller) HandleError(ctx context.Context, toastID string, kind Kind, message string, metadata map[string]any) Outcome {
	failure := &Failure{Kind: kind, Message: message}

	c.mu.Lock()
	s, registered := c.strategies[kind]
	occ := c.occurrenceLocked(toastID, kind, registered)
	c.mu.Unlock()

	attempt := 0
	if occ != nil {
		attempt = int(occ.attempts.Load())
	}

	c.audit(ctx, toastID, failure, metadata, attempt)

	if c.recorder != nil {
		c.recorder.RecordHandled(string(kind), registered)
	}

	if !registered {
		log.Warn("no recovery strategy for error kind",
			logger.String("kind", string(kind)),
			logger.String("toast_id", toastID))
		return OutcomeUnregistered
	}

	occ.mu.Lock()
	defer occ.mu.Unlock()

	if c.exists != nil && !c.exists(toastID) {
		log.Debug("failure reported for a toast no longer active",
			logger.String("kind", string(kind)),
			logger.String("toast_id", toastID))
		return OutcomeToastGone
	}

	if s.shouldRetry(failure) {
		for int(occ.attempts.Load()) < s.attempts() {
			n := int(occ.attempts.Add(1))

			if err := c.timers.Sleep(ctx, s.policy.RetryDelay); err != nil {
				log.Debug("recovery backoff cancelled",
					logger.String("kind", string(kind)),
					logger.String("toast_id", toastID),
					logger.Error(err))
				return OutcomeCancelled
			}

			if c.exists != nil && !c.exists(toastID) {
				log.Debug("toast gone before recovery attempt",
					logger.String("kind", string(kind)),
					logger.String("toast_id", toastID))
				return OutcomeToastGone
			}

			err := c.measurer.MeasureAsync(ctx, perfmon.KindRecovery, func(ctx context.Context) error {
				return s.recover(ctx, toastID)
			}, map[string]any{
				"kind":        string(kind),
				"toast_id":    toastID,
				"retry_count": n,
			})
			if err == nil {
				c.recordAttempt(kind, "success")
				log.Info("toast recovered",
					logger.String("kind", string(kind)),
					logger.String("toast_id", toastID),
					logger.Int("attempt", n))
				return OutcomeRecovered
			}

			c.recordAttempt(kind, "error")
			log.Warn("recovery attempt failed",
				logger.String("kind", string(kind)),
				logger.String("toast_id", toastID),
				logger.Int("attempt", n),
				logger.Int("max_attempts", s.attempts()),
				logger.Error(err))
		}
	}

	if occ.fallbackFired || s.fallback == nil {
		return OutcomeExhausted
	}
	occ.fallbackFired = true

	log.Info("recovery abandoned, running fallback",
		logger.String("kind", string(kind)),
		logger.String("toast_id", toastID),
		logger.Int("attempts", int(occ.attempts.Load())))

	s.fallback(ctx, toastID)
	if c.recorder != nil {
		c.recorder.RecordFallback(string(kind))
	}
	return OutcomeFallback
}

// occurrenceLocked returns the retry state of (toastID, kind), creating it when a strategy exists
func (c *Controller) occurrenceLocked(toastID string, kind Kind, create bool) *occurrence {
	key := occurrenceKey{toastID: toastID, kind: kind}
	occ, ok := c.occurrences[key]
	if !ok && create {
		occ = &occurrence{}
		c.occurrences[key] = occ
	}
	return occ
}

// audit appends the failure to the log and hands it to every sink
func (c *Controller) audit(ctx context.Context, toastID string, failure *Failure, metadata map[string]any, attempt int) {
	entry := ErrorLogEntry{
		ID:              uuid.NewString(),
		Timestamp:       c.timers.Now(),
		ToastID:         toastID,
		Kind:            failure.Kind,
		Message:         failure.Message,
		Context:         cloneContext(metadata),
		Environment:     c.env.Environment(),
		RecoveryAttempt: attempt,
	}

	c.mu.Lock()
	c.errorLog = append(c.errorLog, entry)
	if c.maxLogSize > 0 && len(c.errorLog) > c.maxLogSize {
		c.errorLog = slices.Delete(c.errorLog, 0, len(c.errorLog)-c.maxLogSize)
	}
	c.mu.Unlock()

	if c.reporter != nil && c.reporter.IsEnabled() {
		b := errors.New(failure).
			Component("recovery").
			Category(errors.CategoryRender).
			Context(errors.ContextErrorCode, string(failure.Kind)).
			Context(errors.ContextToastID, toastID).
			Context("recovery_attempt", attempt).
			Context("device", entry.Environment.Device()).
			At(c.timers.Now)
		for k, v := range metadata {
			b = b.Context(k, v)
		}
		c.reporter.ReportError(b.Build())
	}

	if c.persister != nil {
		if err := c.persister.SaveErrorLogEntry(ctx, entry); err != nil {
			log.Error("failed to persist error log entry",
				logger.String("entry_id", entry.ID),
				logger.String("kind", string(failure.Kind)),
				logger.Error(err))
		}
	}

	if c.tracker != nil {
		c.tracker.TrackError(string(failure.Kind), failure.Message, map[string]any{
			"toast_id":         toastID,
			"context":          entry.Context,
			"recovery_attempt": attempt,
		})
	}
}

// cloneContext deep-copies the nested maps and slices of metadata so a logged
// entry never shares mutable state with the caller
func cloneContext(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneContext(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case map[string]string:
		return maps.Clone(val)
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}

func (c *Controller) recordAttempt(kind Kind, result string) {
	if c.recorder != nil {
		c.recorder.RecordAttempt(string(kind), result)
	}
}

// ResetRetryCount starts a fresh occurrence for every toast with a failure of kind:
// the retry budget is restored and the fallback may fire again.
func (c *Controller) ResetRetryCount(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.occurrences {
		if key.kind == kind {
			delete(c.occurrences, key)
		}
	}
}

// Attempts returns the recover calls made for the current occurrence of
// (toastID, kind): the initial attempt plus its retries.
func (c *Controller) Attempts(toastID string, kind Kind) int {
	c.mu.Lock()
	occ := c.occurrences[occurrenceKey{toastID: toastID, kind: kind}]
	c.mu.Unlock()

	if occ == nil {
		return 0
	}
	return int(occ.attempts.Load())
}

// RetryCount returns the retries spent on the current occurrence of (toastID, kind).
// It never exceeds the strategy's MaxRetries.
func (c *Controller) RetryCount(toastID string, kind Kind) int {
	return max(0, c.Attempts(toastID, kind)-1)
}

// Forget drops the retry state of a toast that left the store
func (c *Controller) Forget(toastID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.occurrences {
		if key.toastID == toastID {
			delete(c.occurrences, key)
		}
	}
}

// ErrorLog returns a copy of the audit log, oldest first
func (c *Controller) ErrorLog() []ErrorLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := slices.Clone(c.errorLog)
	for i := range entries {
		entries[i].Context = cloneContext(entries[i].Context)
	}
	return entries
}
