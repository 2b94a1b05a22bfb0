// Package timer schedules one-shot, cancellable callbacks against an injectable clock.
//
// Production code uses the wall clock; tests pass clockwork.NewFakeClock() and
// drive time with Advance.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handle identifies a scheduled callback. The zero Handle is valid and cancels nothing.
type Handle struct {
	id uint64
	s  *Service
}

// Cancel prevents the callback from running. It reports true only when the
// callback had not started yet; after a true return the callback never runs.
func (h Handle) Cancel() bool {
	if h.s == nil {
		return false
	}
	return h.s.cancel(h.id)
}

// Service owns a set of pending one-shot timers
type Service struct {
	clock clockwork.Clock

	mu      sync.Mutex
	pending map[uint64]clockwork.Timer
	nextID  uint64
	stopped bool
}

// New creates a timer service. A nil clock uses the wall clock.
func New(clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		clock:   clock,
		pending: make(map[uint64]clockwork.Timer),
	}
}

// Clock returns the underlying clock
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// Now returns the current time of the underlying clock
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Since returns the time elapsed since t on the underlying clock
func (s *Service) Since(t time.Time) time.Duration {
	return s.clock.Since(t)
}

// Schedule runs fn once after d on its own goroutine. Non-positive durations
// fire as soon as possible. Scheduling on a stopped service returns a zero Handle.
func (s *Service) Schedule(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Handle{}
	}
	s.nextID++
	id := s.nextID
	// Reserve the slot first: a zero-delay timer may fire before AfterFunc returns.
	s.pending[id] = nil
	s.mu.Unlock()

	t := s.clock.AfterFunc(d, func() {
		if !s.claim(id) {
			return
		}
		fn()
	})

	s.mu.Lock()
	if _, ok := s.pending[id]; ok {
		s.pending[id] = t
	}
	s.mu.Unlock()

	return Handle{id: id, s: s}
}

// Sleep blocks for d on the underlying clock or until ctx is done.
func (s *Service) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of callbacks that have neither fired nor been cancelled
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending callback and rejects new ones.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.pending {
		if t != nil {
			t.Stop()
		}
		delete(s.pending, id)
	}
}

// claim removes id from the pending set; only the winner of claim/cancel acts.
func (s *Service) claim(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

func (s *Service) cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	if t != nil {
		t.Stop()
	}
	return true
}
