package recovery

import (
	"context"
	"strings"
	"time"
)

// Renderer is the drawing capability the built-in strategies repair through.
type Renderer interface {
	// RestoreContext asks the graphics context of a toast to come back after a loss
	RestoreContext(ctx context.Context, toastID string) error
	// LowerFidelity switches a toast to cheaper shaders
	LowerFidelity(ctx context.Context, toastID string) error
	// ResetAnimation returns position, rotation and scale to identity
	ResetAnimation(ctx context.Context, toastID string) error
}

// NoopRenderer succeeds at everything without doing anything
type NoopRenderer struct{}

func (NoopRenderer) RestoreContext(context.Context, string) error { return nil }
func (NoopRenderer) LowerFidelity(context.Context, string) error  { return nil }
func (NoopRenderer) ResetAnimation(context.Context, string) error { return nil }

// CommonPolicies returns the stock retry budgets of the built-in strategies
func CommonPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindWebGLContextLost:  {MaxRetries: 2, RetryDelay: time.Second},
		KindShaderCompilation: {MaxRetries: 1},
		KindAnimationFailure:  {MaxRetries: 3, RetryDelay: 500 * time.Millisecond},
		KindGestureFailure:    {MaxRetries: 0},
	}
}

// AddCommonStrategies registers the built-in strategies. overrides replaces the
// retry budget of individual kinds. SOUND_FAILURE stays unregistered.
func (c *Controller) AddCommonStrategies(overrides map[Kind]Policy) {
	policies := CommonPolicies()
	for kind, p := range overrides {
		if _, ok := policies[kind]; ok {
			policies[kind] = p
		}
	}

	c.AddStrategy(KindWebGLContextLost, c.renderer.RestoreContext,
		WithPolicy(policies[KindWebGLContextLost]),
		WithShouldRetry(func(f *Failure) bool { return !strings.Contains(f.Message, "permanent") }),
		WithFallback(c.dismissFallback))

	c.AddStrategy(KindShaderCompilation, c.renderer.LowerFidelity,
		WithPolicy(policies[KindShaderCompilation]),
		WithFallback(c.dismissFallback))

	c.AddStrategy(KindAnimationFailure, c.renderer.ResetAnimation,
		WithPolicy(policies[KindAnimationFailure]),
		WithFallback(c.dismissFallback))

	// Gestures are reported only
	c.AddStrategy(KindGestureFailure, nil,
		WithPolicy(policies[KindGestureFailure]))
}

func (c *Controller) dismissFallback(_ context.Context, toastID string) {
	if c.dismiss != nil {
		c.dismiss(toastID)
	}
}
