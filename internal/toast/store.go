package toast

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/timer"
)

// entry is the store-private state of one active toast
type entry struct {
	toast     Toast
	seq       uint64       // insertion order, breaks priority ties
	timer     timer.Handle // pending auto-dismiss, if any
	gen       uint64       // bumped whenever the timer is replaced; stale callbacks compare against it
	deadline  time.Time    // when the running timer fires
	remaining time.Duration
	reason    RemovalReason // set once the entry leaves the set
}

// Store is the single source of truth for visible toasts.
// All methods are safe for concurrent use; each mutation is atomic with respect to callers.
// OnDismiss callbacks run after the store lock is released.
type Store struct {
	timers   *timer.Service
	log      logger.Logger
	recorder Recorder
	newID    func() string
	onRemove []func(Toast, RemovalReason)

	mu      sync.Mutex
	cfg     Config
	entries []*entry // ordered: priority desc, seq asc
	nextSeq uint64
	subs    map[uint64]chan Change
	nextSub uint64
	closed  bool
}

// Option configures a Store
type Option func(*Store)

// WithConfig sets the initial configuration
func WithConfig(cfg Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// WithLogger sets the logger. The store logs under the "toast" module.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithIDGenerator replaces the UUID generator, used by tests for readable ids
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithRemovalHook registers fn to run after every removal, outside the store lock
func WithRemovalHook(fn func(t Toast, reason RemovalReason)) Option {
	return func(s *Store) {
		if fn != nil {
			s.onRemove = append(s.onRemove, fn)
		}
	}
}

// NewStore creates an empty store scheduling its timers on timers.
func NewStore(timers *timer.Service, opts ...Option) *Store {
	if timers == nil {
		timers = timer.New(nil)
	}
	s := &Store{
		timers:   timers,
		log:      logger.Global().Module("toast"),
		recorder: noopRecorder{},
		newID:    uuid.NewString,
		cfg:      DefaultConfig(),
		subs:     make(map[uint64]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = normalizeConfig(s.cfg)
	return s
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxToasts < 1 {
		cfg.MaxToasts = def.MaxToasts
	}
	if !cfg.DefaultPosition.Valid() {
		cfg.DefaultPosition = def.DefaultPosition
	}
	if cfg.Eviction != EvictOldest {
		cfg.Eviction = EvictNewest
	}
	if cfg.SubscriberBuffer < 1 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	return cfg
}

// Enqueue inserts a toast and returns its fresh id. The active set is re-sorted
// by priority and truncated to MaxToasts; the new toast itself may be evicted
// immediately when everything visible outranks it.
func (s *Store) Enqueue(t Toast) string {
	s.mu.Lock()

	now := s.timers.Now()
	t.ID = s.newID()
	t.CreatedAt = now
	t.IsPaused = false
	if t.Priority == 0 {
		t.Priority = PriorityNormal
	}
	if t.Variant == "" {
		t.Variant = VariantDefault
	}
	if !t.Position.Valid() {
		t.Position = s.cfg.DefaultPosition
	}
	if t.Duration == 0 {
		t.Duration = s.cfg.DefaultDuration
		if t.Duration <= 0 {
			t.Duration = DurationInfinite
		}
	} else if t.Duration < 0 {
		t.Duration = DurationInfinite
	}

	s.nextSeq++
	e := &entry{toast: t, seq: s.nextSeq}
	s.entries = append(s.entries, e)
	s.sortLocked()
	evicted := s.evictLocked()

	s.recorder.RecordEnqueued(t.Priority.String())

	survived := !slices.Contains(evicted, e)
	if survived {
		if t.Finite() {
			s.startTimerLocked(e, t.Duration, now)
		}
		s.publishLocked(ChangeAdded, e, "")
	}
	for _, ev := range evicted {
		s.finishRemovalLocked(ev, ReasonEvicted)
	}

	s.log.Debug("toast enqueued",
		logger.String("id", t.ID),
		logger.String("priority", t.Priority.String()),
		logger.Duration("duration", t.Duration),
		logger.Int("active", len(s.entries)),
		logger.Int("evicted", len(evicted)))

	s.updateGaugesLocked()
	s.mu.Unlock()

	s.runRemovalCallbacks(evicted)
	return t.ID
}

// Update merges p into the toast with the given id. Unknown ids are ignored.
// Timers are untouched; a priority change re-sorts the set without evicting.
func (s *Store) Update(id string, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(id)
	if e == nil {
		return false
	}

	if p.Title != nil {
		e.toast.Title = *p.Title
	}
	if p.Description != nil {
		e.toast.Description = *p.Description
	}
	if p.Variant != nil {
		e.toast.Variant = *p.Variant
	}
	if p.Position != nil && p.Position.Valid() {
		e.toast.Position = *p.Position
	}
	if p.Action != nil {
		action := *p.Action
		e.toast.Action = &action
	}
	if p.OnDismiss != nil {
		e.toast.OnDismiss = p.OnDismiss
	}
	if p.Priority != nil && *p.Priority != e.toast.Priority {
		e.toast.Priority = *p.Priority
		s.sortLocked()
	}

	s.publishLocked(ChangeUpdated, e, "")
	return true
}

// Dismiss removes a toast, cancelling its timer and calling OnDismiss once.
// Repeated calls and unknown ids are no-ops.
func (s *Store) Dismiss(id string) bool {
	return s.remove(id, ReasonDismissed, 0, false)
}

// Pause suspends auto-dismiss and records the remaining time.
// Pausing a paused toast or an unknown id is a no-op.
func (s *Store) Pause(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(id)
	if e == nil || e.toast.IsPaused {
		return false
	}

	e.toast.IsPaused = true
	if e.toast.Finite() {
		e.timer.Cancel()
		e.gen++
		e.remaining = max(0, e.deadline.Sub(s.timers.Now()))
	}

	s.log.Debug("toast paused",
		logger.String("id", id),
		logger.Duration("remaining", e.remaining))
	s.publishLocked(ChangeUpdated, e, "")
	s.updateGaugesLocked()
	return true
}

// Resume restarts auto-dismiss for exactly the remaining time recorded by Pause.
// Resuming a toast that is not paused is a no-op.
func (s *Store) Resume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(id)
	if e == nil || !e.toast.IsPaused {
		return false
	}

	e.toast.IsPaused = false
	if e.toast.Finite() {
		s.startTimerLocked(e, e.remaining, s.timers.Now())
	}

	s.log.Debug("toast resumed",
		logger.String("id", id),
		logger.Duration("remaining", e.remaining))
	s.publishLocked(ChangeUpdated, e, "")
	s.updateGaugesLocked()
	return true
}

// ClearAll dismisses every active toast and returns how many were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()

	removed := s.entries
	s.entries = nil
	for _, e := range removed {
		s.finishRemovalLocked(e, ReasonCleared)
	}
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.runRemovalCallbacks(removed)
	return len(removed)
}

// UpdateConfig adjusts defaults for toasts enqueued afterwards. Active toasts keep
// their settings; a lower MaxToasts takes effect on the next Enqueue.
func (s *Store) UpdateConfig(p ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if p.MaxToasts != nil {
		if *p.MaxToasts < 1 {
			return errors.Newf("max toasts must be at least 1, got %d", *p.MaxToasts).
				Component("toast").
				Category(errors.CategoryValidation).
				Build()
		}
		next.MaxToasts = *p.MaxToasts
	}
	if p.DefaultDuration != nil {
		next.DefaultDuration = *p.DefaultDuration
	}
	if p.DefaultPosition != nil {
		if !p.DefaultPosition.Valid() {
			return errors.Newf("invalid default position %q", *p.DefaultPosition).
				Component("toast").
				Category(errors.CategoryValidation).
				Build()
		}
		next.DefaultPosition = *p.DefaultPosition
	}
	if p.Eviction != nil {
		if *p.Eviction != EvictNewest && *p.Eviction != EvictOldest {
			return errors.Newf("invalid eviction policy %q", *p.Eviction).
				Component("toast").
				Category(errors.CategoryValidation).
				Build()
		}
		next.Eviction = *p.Eviction
	}

	s.cfg = next
	s.log.Info("toast config updated",
		logger.Int("max_toasts", next.MaxToasts),
		logger.Duration("default_duration", next.DefaultDuration),
		logger.String("default_position", string(next.DefaultPosition)))
	return nil
}

// Config returns the current configuration
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Snapshot returns the ordered active set
func (s *Store) Snapshot() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns a copy of the toast with the given id
func (s *Store) Get(id string) (Toast, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(id)
	if e == nil {
		return Toast{}, false
	}
	return s.viewLocked(e, s.timers.Now()), true
}

// Len returns the number of active toasts
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels every pending timer and closes all subscriptions.
// Toasts stay in place and are not dismissed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, e := range s.entries {
		e.timer.Cancel()
		e.gen++
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// expire is the auto-dismiss callback. Callbacks from replaced timers are ignored.
func (s *Store) expire(id string, gen uint64) {
	s.remove(id, ReasonExpired, gen, true)
}

func (s *Store) remove(id string, reason RemovalReason, gen uint64, checkGen bool) bool {
	s.mu.Lock()

	idx := slices.IndexFunc(s.entries, func(e *entry) bool { return e.toast.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	e := s.entries[idx]
	if checkGen && (e.gen != gen || e.toast.IsPaused) {
		s.mu.Unlock()
		return false
	}

	s.entries = slices.Delete(s.entries, idx, idx+1)
	s.finishRemovalLocked(e, reason)
	s.updateGaugesLocked()
	s.mu.Unlock()

	s.runRemovalCallbacks([]*entry{e})
	return true
}

// finishRemovalLocked cancels the timer of an entry already taken out of s.entries
// and publishes the removal.
func (s *Store) finishRemovalLocked(e *entry, reason RemovalReason) {
	e.timer.Cancel()
	e.gen++
	e.reason = reason
	s.recorder.RecordRemoved(string(reason))
	s.log.Debug("toast removed",
		logger.String("id", e.toast.ID),
		logger.String("reason", string(reason)))
	s.publishLocked(ChangeRemoved, e, reason)
}

func (s *Store) startTimerLocked(e *entry, d time.Duration, now time.Time) {
	if s.closed {
		return
	}
	e.gen++
	gen := e.gen
	id := e.toast.ID
	e.deadline = now.Add(d)
	e.remaining = d
	e.timer = s.timers.Schedule(d, func() { s.expire(id, gen) })
}

func (s *Store) sortLocked() {
	slices.SortFunc(s.entries, func(a, b *entry) int {
		if c := cmp.Compare(b.toast.Priority, a.toast.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}

// evictLocked trims the sorted set to MaxToasts and returns what was dropped
func (s *Store) evictLocked() []*entry {
	var evicted []*entry
	for len(s.entries) > s.cfg.MaxToasts {
		idx := len(s.entries) - 1
		if s.cfg.Eviction == EvictOldest {
			lowest := s.entries[idx].toast.Priority
			idx = slices.IndexFunc(s.entries, func(e *entry) bool { return e.toast.Priority == lowest })
		}
		evicted = append(evicted, s.entries[idx])
		s.entries = slices.Delete(s.entries, idx, idx+1)
	}
	return evicted
}

func (s *Store) findLocked(id string) *entry {
	for _, e := range s.entries {
		if e.toast.ID == id {
			return e
		}
	}
	return nil
}

// viewLocked renders an entry as a Toast with Remaining filled in
func (s *Store) viewLocked(e *entry, now time.Time) Toast {
	t := e.toast
	switch {
	case !t.Finite():
		t.Remaining = DurationInfinite
	case t.IsPaused:
		t.Remaining = e.remaining
	default:
		t.Remaining = max(0, e.deadline.Sub(now))
	}
	if t.Action != nil {
		action := *t.Action
		t.Action = &action
	}
	return t
}

func (s *Store) snapshotLocked() []Toast {
	now := s.timers.Now()
	out := make([]Toast, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, s.viewLocked(e, now))
	}
	return out
}

func (s *Store) updateGaugesLocked() {
	paused := 0
	for _, e := range s.entries {
		if e.toast.IsPaused {
			paused++
		}
	}
	s.recorder.SetActive(len(s.entries), paused)
}

// runRemovalCallbacks invokes OnDismiss and the removal hooks of removed entries.
// Entries are removed from the set exactly once, so each callback runs at most once.
func (s *Store) runRemovalCallbacks(removed []*entry) {
	for _, e := range removed {
		if e.toast.OnDismiss != nil {
			e.toast.OnDismiss()
		}
		if len(s.onRemove) == 0 {
			continue
		}
		t := e.toast
		t.OnDismiss = nil
		for _, fn := range s.onRemove {
			fn(t, e.reason)
		}
	}
}
