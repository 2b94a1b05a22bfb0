package telemetry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// MockTransport is a sentry.Transport that keeps events in memory instead of sending them.
type MockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

// NewMockTransport returns an empty transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

//nolint:gocritic // hugeParam: signature fixed by sentry.Transport
func (t *MockTransport) Configure(sentry.ClientOptions) {}

func (t *MockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()
}

func (t *MockTransport) Flush(time.Duration) bool { return true }

func (t *MockTransport) FlushWithContext(ctx context.Context) bool { return ctx.Err() == nil }

func (t *MockTransport) Close() {}

// Events returns the captured events in send order
func (t *MockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// Count returns how many events were captured
func (t *MockTransport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// WithErrorCode returns the captured events tagged with the given toast error code
func (t *MockTransport) WithErrorCode(code string) []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*sentry.Event
	for _, e := range t.events {
		if e.Tags["errorCode"] == code {
			out = append(out, e)
		}
	}
	return out
}
