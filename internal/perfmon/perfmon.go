// Package perfmon times presentation operations against per-kind latency budgets.
package perfmon

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tphakala/toastd/internal/logger"
)

// Operation kinds with a default threshold. Other kinds, such as KindRecovery,
// are recorded but never raise an issue unless a threshold is set for them.
const (
	KindAnimation = "animation"
	KindRender    = "render"
	KindGesture   = "gesture"
	KindWebGL     = "webgl"
	KindRecovery  = "recovery"
)

// DefaultThresholds returns the stock latency budgets
func DefaultThresholds() map[string]time.Duration {
	return map[string]time.Duration{
		KindAnimation: 16 * time.Millisecond, // one frame at 60fps
		KindRender:    50 * time.Millisecond,
		KindGesture:   100 * time.Millisecond,
		KindWebGL:     33 * time.Millisecond, // one frame at 30fps
	}
}

// Metric is one recorded sample
type Metric struct {
	Kind      string         `json:"kind"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// IssueFunc receives samples that exceeded their kind's threshold
type IssueFunc func(Metric)

// Recorder receives every sample. Implemented by metrics.PerformanceMetrics.
type Recorder interface {
	ObserveDuration(kind string, d time.Duration)
	RecordBreach(kind string)
}

// Tracker forwards threshold breaches to analytics
type Tracker interface {
	TrackPerformance(kind string, d time.Duration, metadata map[string]any)
}

// Monitor records operation durations and reports threshold breaches.
type Monitor struct {
	clock      clockwork.Clock
	onIssue    IssueFunc
	recorder   Recorder
	tracker    Tracker
	maxSamples int

	mu         sync.Mutex
	samples    []Metric
	totals     map[string]runningTotal
	thresholds map[string]time.Duration
}

// runningTotal covers every sample of a kind, including ones no longer retained
type runningTotal struct {
	sum   time.Duration
	count int64
}

func (rt runningTotal) mean() time.Duration {
	if rt.count == 0 {
		return 0
	}
	return rt.sum / time.Duration(rt.count)
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock sets the clock used for timing; tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithThresholds overrides individual default thresholds.
func WithThresholds(t map[string]time.Duration) Option {
	return func(m *Monitor) { maps.Copy(m.thresholds, t) }
}

// WithMaxSamples bounds the retained samples; the oldest are dropped first. 0 keeps all.
func WithMaxSamples(n int) Option {
	return func(m *Monitor) { m.maxSamples = max(0, n) }
}

// WithIssueHandler sets the threshold breach callback.
func WithIssueHandler(fn IssueFunc) Option {
	return func(m *Monitor) { m.onIssue = fn }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithTracker sets the analytics tracker.
func WithTracker(t Tracker) Option {
	return func(m *Monitor) { m.tracker = t }
}

// New creates a Monitor with the default thresholds.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		clock:      clockwork.NewRealClock(),
		totals:     make(map[string]runningTotal),
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MeasureTime runs fn, records how long it took and returns that duration.
// A breach invokes the issue handler before MeasureTime returns.
func (m *Monitor) MeasureTime(kind string, fn func(), metadata map[string]any) time.Duration {
	start := m.clock.Now()
	fn()
	d := m.clock.Since(start)
	m.record(kind, d, metadata)
	return d
}

// MeasureAsync runs fn and records its duration whether or not it fails.
// The error returned by fn is returned unchanged.
func (m *Monitor) MeasureAsync(ctx context.Context, kind string, fn func(context.Context) error, metadata map[string]any) error {
	start := m.clock.Now()
	err := fn(ctx)
	d := m.clock.Since(start)

	if err != nil {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		} else {
			metadata = maps.Clone(metadata)
		}
		metadata["error"] = err.Error()
	}
	m.record(kind, d, metadata)
	return err
}

// Record adds an externally measured sample, for adapters that time work themselves.
func (m *Monitor) Record(kind string, d time.Duration, metadata map[string]any) {
	m.record(kind, d, metadata)
}

func (m *Monitor) record(kind string, d time.Duration, metadata map[string]any) {
	metric := Metric{
		Kind:      kind,
		Duration:  d,
		Timestamp: m.clock.Now(),
		Context:   metadata,
	}

	m.mu.Lock()
	m.samples = append(m.samples, metric)
	rt := m.totals[kind]
	rt.sum += d
	rt.count++
	m.totals[kind] = rt
	if m.maxSamples > 0 && len(m.samples) > m.maxSamples {
		m.samples = slices.Delete(m.samples, 0, len(m.samples)-m.maxSamples)
	}
	threshold, ok := m.thresholds[kind]
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.ObserveDuration(kind, d)
	}

	if !ok || d <= threshold {
		return
	}

	log.Debug("performance threshold exceeded",
		logger.String("kind", kind),
		logger.Duration("duration", d),
		logger.Duration("threshold", threshold))

	if m.recorder != nil {
		m.recorder.RecordBreach(kind)
	}
	if m.tracker != nil {
		m.tracker.TrackPerformance(kind, d, metadata)
	}
	if m.onIssue != nil {
		m.onIssue(metric)
	}
}

// GetAverageMetric returns the mean duration of every sample of kind recorded
// since the last ClearMetrics, or 0 without samples. Samples dropped by
// WithMaxSamples still count.
func (m *Monitor) GetAverageMetric(kind string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[kind].mean()
}

// Averages returns the mean duration of every kind that has samples
func (m *Monitor) Averages() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Duration, len(m.totals))
	for kind, rt := range m.totals {
		out[kind] = rt.mean()
	}
	return out
}

// Metrics returns a copy of the retained samples in recording order
func (m *Monitor) Metrics() []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.samples)
}

// ClearMetrics drops every sample and resets the averages. Thresholds are kept.
func (m *Monitor) ClearMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = nil
	clear(m.totals)
}

// SetThreshold sets the budget of kind. A non-positive duration removes it.
func (m *Monitor) SetThreshold(kind string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d <= 0 {
		delete(m.thresholds, kind)
		return
	}
	m.thresholds[kind] = d
}

// Threshold returns the budget of kind
func (m *Monitor) Threshold(kind string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.thresholds[kind]
	return d, ok
}
