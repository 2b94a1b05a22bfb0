package toast

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/testutil"
	"github.com/tphakala/toastd/internal/timer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = time.Second
	tick    = time.Millisecond
	quiet   = 30 * time.Millisecond
)

// newTestStore returns a store on a fake clock with sequential ids t1, t2, ...
func newTestStore(t *testing.T, cfg Config, opts ...Option) (*Store, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	timers := timer.New(clock)

	var n atomic.Int32
	all := append([]Option{
		WithConfig(cfg),
		WithLogger(logger.NewDiscardLogger()),
		WithIDGenerator(func() string { return fmt.Sprintf("t%d", n.Add(1)) }),
	}, opts...)

	s := NewStore(timers, all...)
	t.Cleanup(func() {
		s.Close()
		timers.Stop()
	})
	return s, clock
}

func ids(toasts []Toast) []string {
	out := make([]string, 0, len(toasts))
	for i := range toasts {
		out = append(out, toasts[i].ID)
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	enqueued map[string]int
	removed  map[string]int
	dropped  int
	active   int
	paused   int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{enqueued: map[string]int{}, removed: map[string]int{}}
}

func (r *fakeRecorder) RecordEnqueued(p string) { r.mu.Lock(); r.enqueued[p]++; r.mu.Unlock() }
func (r *fakeRecorder) RecordRemoved(rs string) { r.mu.Lock(); r.removed[rs]++; r.mu.Unlock() }
func (r *fakeRecorder) RecordDroppedChange()    { r.mu.Lock(); r.dropped++; r.mu.Unlock() }
func (r *fakeRecorder) SetActive(a, p int)      { r.mu.Lock(); r.active, r.paused = a, p; r.mu.Unlock() }

func TestEnqueue_AppliesDefaults(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())
	id := s.Enqueue(Toast{Title: "hello"})

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, PriorityNormal, got.Priority)
	assert.Equal(t, VariantDefault, got.Variant)
	assert.Equal(t, PositionBottomRight, got.Position)
	assert.Equal(t, 5*time.Second, got.Duration)
	assert.Equal(t, 5*time.Second, got.Remaining)
	assert.Equal(t, clock.Now(), got.CreatedAt)
	assert.False(t, got.IsPaused)
}

func TestEnqueue_ReturnsFreshIDs(t *testing.T) {
	t.Parallel()

	s := NewStore(timer.New(clockwork.NewFakeClock()), WithLogger(logger.NewDiscardLogger()))
	defer s.Close()

	a := s.Enqueue(Toast{Title: "a"})
	b := s.Enqueue(Toast{Title: "b"})
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestEnqueue_PriorityOrderAndEviction(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxToasts = 2
	s, _ := newTestStore(t, cfg)

	var lowDismissed atomic.Int32
	a := s.Enqueue(Toast{Title: "A", Priority: PriorityLow, OnDismiss: func() { lowDismissed.Add(1) }})
	b := s.Enqueue(Toast{Title: "B", Priority: PriorityUrgent})
	c := s.Enqueue(Toast{Title: "C", Priority: PriorityNormal})

	assert.Equal(t, []string{b, c}, ids(s.Snapshot()))
	_, ok := s.Get(a)
	assert.False(t, ok)
	assert.Equal(t, int32(1), lowDismissed.Load())
}

func TestEnqueue_EqualPriorityKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())
	a := s.Enqueue(Toast{Title: "a", Priority: PriorityHigh})
	b := s.Enqueue(Toast{Title: "b", Priority: PriorityHigh})
	c := s.Enqueue(Toast{Title: "c", Priority: PriorityUrgent})

	assert.Equal(t, []string{c, a, b}, ids(s.Snapshot()))
}

func TestEnqueue_EvictionPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  EvictionPolicy
		evicted int // index into enqueued ids
	}{
		{name: "newest", policy: EvictNewest, evicted: 2},
		{name: "oldest", policy: EvictOldest, evicted: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.MaxToasts = 2
			cfg.Eviction = tt.policy
			s, _ := newTestStore(t, cfg)

			var dismissed [3]atomic.Int32
			var enqueued []string
			for i := range 3 {
				enqueued = append(enqueued, s.Enqueue(Toast{
					Title:     fmt.Sprintf("n%d", i),
					OnDismiss: func() { dismissed[i].Add(1) },
				}))
			}

			snap := ids(s.Snapshot())
			assert.Len(t, snap, 2)
			assert.NotContains(t, snap, enqueued[tt.evicted])
			for i := range dismissed {
				want := int32(0)
				if i == tt.evicted {
					want = 1
				}
				assert.Equal(t, want, dismissed[i].Load(), "toast %d", i)
			}
		})
	}
}

func TestEnqueue_HigherPriorityNeverEvictedForLower(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxToasts = 1
	s, _ := newTestStore(t, cfg)

	urgent := s.Enqueue(Toast{Title: "urgent", Priority: PriorityUrgent})
	s.Enqueue(Toast{Title: "low", Priority: PriorityLow})

	assert.Equal(t, []string{urgent}, ids(s.Snapshot()))
}

func TestAutoDismiss_Expires(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())

	var dismissed atomic.Int32
	s.Enqueue(Toast{Title: "x", Duration: 2 * time.Second, OnDismiss: func() { dismissed.Add(1) }})

	clock.Advance(1999 * time.Millisecond)
	assert.Never(t, func() bool { return s.Len() == 0 }, quiet, tick)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return s.Len() == 0 }, waitFor, tick)
	require.Eventually(t, func() bool { return dismissed.Load() == 1 }, waitFor, tick)
}

func TestAutoDismiss_InfiniteNeverExpires(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())
	id := s.Enqueue(Toast{Title: "sticky", Duration: DurationInfinite})

	clock.Advance(24 * time.Hour)
	assert.Never(t, func() bool { return s.Len() == 0 }, quiet, tick)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, DurationInfinite, got.Remaining)
}

func TestAutoDismiss_NonPositiveDefaultNeverExpires(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DefaultDuration = 0
	s, clock := newTestStore(t, cfg)
	id := s.Enqueue(Toast{Title: "x"})

	got, _ := s.Get(id)
	assert.Equal(t, DurationInfinite, got.Duration)

	clock.Advance(time.Hour)
	assert.Never(t, func() bool { return s.Len() == 0 }, quiet, tick)
}

func TestPauseResume_PreservesRemaining(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())
	id := s.Enqueue(Toast{Title: "x", Duration: 5 * time.Second})

	clock.Advance(2 * time.Second)
	require.True(t, s.Pause(id))

	got, _ := s.Get(id)
	assert.True(t, got.IsPaused)
	assert.Equal(t, 3*time.Second, got.Remaining)

	// Paused toasts do not expire however long they wait
	clock.Advance(time.Minute)
	assert.Never(t, func() bool { return s.Len() == 0 }, quiet, tick)

	require.True(t, s.Resume(id))
	clock.Advance(2999 * time.Millisecond)
	assert.Never(t, func() bool { return s.Len() == 0 }, quiet, tick)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return s.Len() == 0 }, waitFor, tick)
}

func TestPauseResume_Idempotent(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())
	id := s.Enqueue(Toast{Title: "x", Duration: 5 * time.Second})

	assert.False(t, s.Resume(id), "resume of a running toast is a no-op")

	clock.Advance(time.Second)
	require.True(t, s.Pause(id))
	clock.Advance(time.Second)
	assert.False(t, s.Pause(id), "second pause keeps the first remaining time")

	got, _ := s.Get(id)
	assert.Equal(t, 4*time.Second, got.Remaining)

	assert.False(t, s.Pause("missing"))
	assert.False(t, s.Resume("missing"))
}

func TestDismiss_Idempotent(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())

	var dismissed atomic.Int32
	id := s.Enqueue(Toast{Title: "x", OnDismiss: func() { dismissed.Add(1) }})

	assert.True(t, s.Dismiss(id))
	assert.False(t, s.Dismiss(id))
	assert.False(t, s.Dismiss("unknown"))
	assert.Equal(t, int32(1), dismissed.Load())

	// The cancelled timer must not fire the callback again
	clock.Advance(10 * time.Second)
	assert.Never(t, func() bool { return dismissed.Load() > 1 }, quiet, tick)
}

func TestDismiss_CancelsTimer(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := timer.New(clock)
	defer timers.Stop()
	s := NewStore(timers, WithLogger(logger.NewDiscardLogger()))
	defer s.Close()

	id := s.Enqueue(Toast{Title: "x"})
	assert.Equal(t, 1, timers.Pending())

	s.Dismiss(id)
	assert.Equal(t, 0, timers.Pending())
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())

	var dismissed atomic.Int32
	for i := range 3 {
		s.Enqueue(Toast{Title: fmt.Sprint(i), OnDismiss: func() { dismissed.Add(1) }})
	}

	assert.Equal(t, 3, s.ClearAll())
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, int32(3), dismissed.Load())
	assert.Equal(t, 0, s.ClearAll())
}

func TestUpdate_MergesFields(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore(t, DefaultConfig())
	id := s.Enqueue(Toast{Title: "old", Description: "keep", Duration: 5 * time.Second})

	clock.Advance(time.Second)
	title := "new"
	require.True(t, s.Update(id, Patch{Title: &title}))

	got, _ := s.Get(id)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "keep", got.Description)
	assert.Equal(t, 4*time.Second, got.Remaining, "update must not restart the timer")

	assert.False(t, s.Update("missing", Patch{Title: &title}))
}

func TestUpdate_PriorityChangeResorts(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())
	a := s.Enqueue(Toast{Title: "a"})
	b := s.Enqueue(Toast{Title: "b"})
	require.Equal(t, []string{a, b}, ids(s.Snapshot()))

	urgent := PriorityUrgent
	require.True(t, s.Update(b, Patch{Priority: &urgent}))
	assert.Equal(t, []string{b, a}, ids(s.Snapshot()))
}

func TestUpdateConfig(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())

	maxToasts := 5
	pos := PositionTopLeft
	dur := time.Second
	require.NoError(t, s.UpdateConfig(ConfigPatch{MaxToasts: &maxToasts, DefaultPosition: &pos, DefaultDuration: &dur}))

	cfg := s.Config()
	assert.Equal(t, 5, cfg.MaxToasts)
	assert.Equal(t, PositionTopLeft, cfg.DefaultPosition)
	assert.Equal(t, time.Second, cfg.DefaultDuration)

	id := s.Enqueue(Toast{Title: "x"})
	got, _ := s.Get(id)
	assert.Equal(t, PositionTopLeft, got.Position)
	assert.Equal(t, time.Second, got.Duration)
}

func TestUpdateConfig_Rejects(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())

	zero := 0
	err := s.UpdateConfig(ConfigPatch{MaxToasts: &zero})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	bad := Position("middle")
	require.Error(t, s.UpdateConfig(ConfigPatch{DefaultPosition: &bad}))

	policy := EvictionPolicy("random")
	require.Error(t, s.UpdateConfig(ConfigPatch{Eviction: &policy}))

	assert.Equal(t, DefaultConfig().MaxToasts, s.Config().MaxToasts, "rejected patch changes nothing")
}

func TestUpdateConfig_LowerMaxAppliesOnNextEnqueue(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())
	for range 3 {
		s.Enqueue(Toast{Title: "x"})
	}

	one := 1
	require.NoError(t, s.UpdateConfig(ConfigPatch{MaxToasts: &one}))
	assert.Equal(t, 3, s.Len())

	s.Enqueue(Toast{Title: "y", Priority: PriorityUrgent})
	assert.Equal(t, 1, s.Len())
}

func TestSubscribe_ReceivesChanges(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())
	ch, cancel := s.Subscribe()
	defer cancel()

	id := s.Enqueue(Toast{Title: "x"})
	change := testutil.Receive(t, ch, waitFor, "added change")
	assert.Equal(t, ChangeAdded, change.Type)
	assert.Equal(t, id, change.Toast.ID)
	assert.Equal(t, []string{id}, ids(change.Snapshot))

	s.Pause(id)
	change = testutil.Receive(t, ch, waitFor, "pause change")
	assert.Equal(t, ChangeUpdated, change.Type)
	assert.True(t, change.Toast.IsPaused)

	s.Dismiss(id)
	change = testutil.Receive(t, ch, waitFor, "removed change")
	assert.Equal(t, ChangeRemoved, change.Type)
	assert.Equal(t, ReasonDismissed, change.Reason)
	assert.Empty(t, change.Snapshot)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())
	ch, cancel := s.Subscribe()
	cancel()
	cancel()

	testutil.WaitClosed(t, ch, waitFor, "subscription channel")

	// Publishing after unsubscribe must not panic
	s.Enqueue(Toast{Title: "x"})
}

func TestSubscribe_FullBufferDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	rec := newFakeRecorder()
	cfg := DefaultConfig()
	cfg.SubscriberBuffer = 1
	s, _ := newTestStore(t, cfg, WithRecorder(rec))

	_, cancel := s.Subscribe()
	defer cancel()

	s.Enqueue(Toast{Title: "a"})
	s.Enqueue(Toast{Title: "b"})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.dropped)
}

func TestSubscribe_AfterCloseReturnsClosedChannel(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t, DefaultConfig())
	s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()
	testutil.WaitClosed(t, ch, waitFor, "subscription after close")
}

func TestRecorder_TracksLifecycle(t *testing.T) {
	t.Parallel()

	rec := newFakeRecorder()
	cfg := DefaultConfig()
	cfg.MaxToasts = 1
	s, clock := newTestStore(t, cfg, WithRecorder(rec))

	a := s.Enqueue(Toast{Title: "a", Priority: PriorityHigh, Duration: time.Second})
	s.Enqueue(Toast{Title: "b", Priority: PriorityLow})
	s.Pause(a)

	rec.mu.Lock()
	assert.Equal(t, 1, rec.enqueued["high"])
	assert.Equal(t, 1, rec.enqueued["low"])
	assert.Equal(t, 1, rec.removed["evicted"])
	assert.Equal(t, 1, rec.active)
	assert.Equal(t, 1, rec.paused)
	rec.mu.Unlock()

	s.Resume(a)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.removed["expired"] == 1 && rec.active == 0
	}, waitFor, tick)
}

func TestRemovalHook_ReportsEveryReason(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	got := map[string]RemovalReason{}
	hook := func(removed Toast, reason RemovalReason) {
		mu.Lock()
		defer mu.Unlock()
		got[removed.ID] = reason
	}

	cfg := DefaultConfig()
	cfg.MaxToasts = 2
	s, clock := newTestStore(t, cfg, WithRemovalHook(hook))

	a := s.Enqueue(Toast{Title: "a", Duration: time.Second})
	b := s.Enqueue(Toast{Title: "b", Duration: DurationInfinite})
	c := s.Enqueue(Toast{Title: "c", Priority: PriorityLow})
	s.Dismiss(b)
	d := s.Enqueue(Toast{Title: "d", Duration: DurationInfinite})

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return s.Len() == 1 }, waitFor, tick)
	s.ClearAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]RemovalReason{
		a: ReasonExpired,
		b: ReasonDismissed,
		c: ReasonEvicted,
		d: ReasonCleared,
	}, got)
}

func TestClose_CancelsTimersKeepsToasts(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	timers := timer.New(clock)
	defer timers.Stop()
	s := NewStore(timers, WithLogger(logger.NewDiscardLogger()))

	s.Enqueue(Toast{Title: "x"})
	s.Close()
	s.Close()

	assert.Equal(t, 0, timers.Pending())
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentMutations(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxToasts = 10
	s, clock := newTestStore(t, cfg)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 50 {
				id := s.Enqueue(Toast{Title: "x", Priority: Priority(j%4 + 1)})
				switch (i + j) % 3 {
				case 0:
					s.Pause(id)
					s.Resume(id)
				case 1:
					s.Dismiss(id)
				}
			}
		})
	}
	wg.Wait()
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool { return s.Len() == 0 }, waitFor, tick)
}
