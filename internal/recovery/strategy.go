package recovery

import (
	"context"
	"time"
)

// Defaults applied by AddStrategy when an option is not given
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// RecoverFunc attempts to repair the toast; a non-nil error counts as a failed attempt.
type RecoverFunc func(ctx context.Context, toastID string) error

// FallbackFunc degrades gracefully once recovery is abandoned.
type FallbackFunc func(ctx context.Context, toastID string)

// ShouldRetryFunc decides whether a failure is worth retrying at all.
type ShouldRetryFunc func(f *Failure) bool

// Policy is the retry budget of a strategy
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero disables recovery: the fallback runs immediately.
	MaxRetries int
	RetryDelay time.Duration // wait before every attempt
}

// strategy is a registered per-kind policy
type strategy struct {
	policy      Policy
	recover     RecoverFunc
	fallback    FallbackFunc
	shouldRetry ShouldRetryFunc
}

// attempts is the maximum number of recover calls per occurrence
func (s *strategy) attempts() int {
	if s.recover == nil || s.policy.MaxRetries <= 0 {
		return 0
	}
	return s.policy.MaxRetries + 1
}

// StrategyOption configures a strategy passed to AddStrategy
type StrategyOption func(*strategy)

// WithMaxRetries sets the number of retries after the first attempt
func WithMaxRetries(n int) StrategyOption {
	return func(s *strategy) { s.policy.MaxRetries = max(0, n) }
}

// WithRetryDelay sets the wait before each attempt
func WithRetryDelay(d time.Duration) StrategyOption {
	return func(s *strategy) { s.policy.RetryDelay = max(0, d) }
}

// WithFallback sets the action run once recovery is abandoned
func WithFallback(fn FallbackFunc) StrategyOption {
	return func(s *strategy) { s.fallback = fn }
}

// WithShouldRetry sets the retry predicate
func WithShouldRetry(fn ShouldRetryFunc) StrategyOption {
	return func(s *strategy) {
		if fn != nil {
			s.shouldRetry = fn
		}
	}
}

// WithPolicy applies a whole retry budget, typically loaded from configuration
func WithPolicy(p Policy) StrategyOption {
	return func(s *strategy) {
		s.policy = Policy{MaxRetries: max(0, p.MaxRetries), RetryDelay: max(0, p.RetryDelay)}
	}
}

func alwaysRetry(*Failure) bool { return true }
