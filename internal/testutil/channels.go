// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	// DefaultTestTimeout bounds most waits on goroutines driven by a fake clock
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for values that should already be in flight
	ShortTestTimeout = 1 * time.Second
)

// Receive returns the next value sent on ch, failing the test after timeout.
// A closed channel also fails the test.
func Receive[T any](t testing.TB, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			require.FailNow(t, msg, "channel closed")
		}
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg, "timed out after %s", timeout)
	}
	var zero T
	return zero
}

// WaitClosed fails the test unless ch is closed within timeout. Values still
// buffered in ch are discarded.
func WaitClosed[T any](t testing.TB, ch <-chan T, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, msg, "channel still open after %s", timeout)
		}
	}
}
