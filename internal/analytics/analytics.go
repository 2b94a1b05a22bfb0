// Package analytics batches error, performance and interaction events and posts
// them as JSON to a collector endpoint.
package analytics

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/httpclient"
	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/privacy"
)

// Category groups events on the collector side
type Category string

const (
	CategoryError       Category = "error"
	CategoryPerformance Category = "performance"
	CategoryInteraction Category = "interaction"
)

// Event is one analytics record. Timestamp is in Unix milliseconds.
type Event struct {
	ID        string         `json:"id"`
	Category  Category       `json:"category"`
	Action    string         `json:"action"`
	Label     string         `json:"label,omitempty"`
	Value     float64        `json:"value,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// batch is the request body posted to the collector
type batch struct {
	Events []Event `json:"events"`
}

// Config configures a Tracker
type Config struct {
	Endpoint      string
	APIKey        string
	BatchSize     int           // queue length that triggers an immediate flush
	FlushInterval time.Duration // periodic flush
	Timeout       time.Duration // per-request timeout
	MaxQueue      int           // events kept while the collector is unreachable; oldest dropped first
}

const (
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
	defaultQueueFactor   = 100
)

// Tracker queues events and flushes them in batches.
type Tracker struct {
	cfg       Config
	client    *httpclient.Client
	clock     clockwork.Clock
	scheduler gocron.Scheduler
	job       gocron.Job

	flushMu sync.Mutex // one delivery at a time, keeps batches in order

	mu      sync.Mutex
	queue   []Event
	started bool
	closed  bool
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock sets the clock for event timestamps and the flush schedule.
func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *httpclient.Client) Option {
	return func(t *Tracker) {
		if c != nil {
			t.client = c
		}
	}
}

// New creates a tracker. Call Start to begin periodic flushing.
func New(cfg Config, opts ...Option) (*Tracker, error) {
	if cfg.Endpoint == "" {
		return nil, errors.Newf("analytics endpoint is required").
			Component("analytics").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxQueue < cfg.BatchSize {
		cfg.MaxQueue = cfg.BatchSize * defaultQueueFactor
	}

	t := &Tracker{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = httpclient.New(&httpclient.Config{DefaultTimeout: cfg.Timeout})
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(t.clock))
	if err != nil {
		return nil, fmt.Errorf("creating analytics scheduler: %w", err)
	}
	job, err := scheduler.NewJob(
		gocron.DurationJob(cfg.FlushInterval),
		gocron.NewTask(t.scheduledFlush),
		gocron.WithName("analytics-flush"),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("scheduling analytics flush: %w", err)
	}

	t.scheduler = scheduler
	t.job = job
	return t, nil
}

// Start begins periodic flushing.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.closed {
		return
	}
	t.started = true
	t.scheduler.Start()
	log.Info("analytics tracker started",
		logger.String("endpoint", t.cfg.Endpoint),
		logger.Int("batch_size", t.cfg.BatchSize),
		logger.Duration("flush_interval", t.cfg.FlushInterval))
}

// TrackError queues an error event. The message and metadata are scrubbed of
// URLs, e-mail addresses and credentials.
func (t *Tracker) TrackError(kind, message string, metadata map[string]any) {
	md := privacy.ScrubContext(metadata)
	if md == nil {
		md = make(map[string]any, 1)
	}
	md["code"] = kind
	t.track(Event{
		Category: CategoryError,
		Action:   kind,
		Label:    privacy.ScrubMessage(message),
		Metadata: md,
	})
}

// TrackPerformance queues a performance event with the duration in milliseconds
func (t *Tracker) TrackPerformance(kind string, d time.Duration, metadata map[string]any) {
	t.track(Event{
		Category: CategoryPerformance,
		Action:   kind,
		Value:    float64(d) / float64(time.Millisecond),
		Metadata: maps.Clone(metadata),
	})
}

// TrackInteraction queues a user interaction such as a hover or a swipe
func (t *Tracker) TrackInteraction(action, label string) {
	t.track(Event{
		Category: CategoryInteraction,
		Action:   action,
		Label:    label,
	})
}

func (t *Tracker) track(e Event) {
	e.ID = uuid.NewString()
	e.Timestamp = t.clock.Now().UnixMilli()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, e)
	if over := len(t.queue) - t.cfg.MaxQueue; over > 0 {
		t.queue = slices.Delete(t.queue, 0, over)
		log.Warn("analytics queue full, dropped oldest events", logger.Int("dropped", over))
	}
	full := len(t.queue) >= t.cfg.BatchSize
	started := t.started
	t.mu.Unlock()

	if full && started {
		if err := t.job.RunNow(); err != nil {
			log.Debug("could not trigger analytics flush", logger.Error(err))
		}
	}
}

// Pending returns the number of queued events
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Tracker) scheduledFlush() {
	ctx := context.Background()
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	if err := t.Flush(ctx); err != nil {
		log.Warn("analytics flush failed, events re-queued", logger.Error(err))
	}
}

// Flush posts every queued event in one batch. On failure the batch goes back
// to the front of the queue.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	events := t.queue
	t.queue = nil
	t.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	if err := t.send(ctx, events); err != nil {
		t.mu.Lock()
		t.queue = append(events, t.queue...)
		if over := len(t.queue) - t.cfg.MaxQueue; over > 0 {
			t.queue = slices.Delete(t.queue, 0, over)
		}
		t.mu.Unlock()
		return err
	}

	log.Debug("analytics batch delivered", logger.Int("events", len(events)))
	return nil
}

func (t *Tracker) send(ctx context.Context, events []Event) error {
	resp, err := t.client.PostJSON(ctx, t.cfg.Endpoint, batch{Events: events}, map[string]string{
		"Authorization": "Bearer " + t.cfg.APIKey,
	})
	if err != nil {
		return errors.New(privacy.ScrubError(err)).
			Component("analytics").
			Category(errors.CategoryNetwork).
			Context("events", len(events)).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Newf("analytics endpoint returned status %d", resp.StatusCode).
			Component("analytics").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Context("events", len(events)).
			Build()
	}
	return nil
}

// Close stops the schedule and makes a final flush. Events tracked afterwards are dropped.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if err := t.scheduler.Shutdown(); err != nil {
		log.Warn("analytics scheduler shutdown failed", logger.Error(err))
	}
	err := t.Flush(ctx)
	t.client.Close()
	return err
}
