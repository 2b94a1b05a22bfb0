package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (r *fakeRenderer) call(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[name]++
	return r.err
}

func (r *fakeRenderer) RestoreContext(context.Context, string) error { return r.call("restore") }
func (r *fakeRenderer) LowerFidelity(context.Context, string) error  { return r.call("fidelity") }
func (r *fakeRenderer) ResetAnimation(context.Context, string) error { return r.call("reset") }

type dismissals struct {
	mu  sync.Mutex
	ids []string
}

func (d *dismissals) dismiss(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return true
}

func TestAddCommonStrategies_Policies(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	c.AddCommonStrategies(map[Kind]Policy{
		KindAnimationFailure: {MaxRetries: 5, RetryDelay: time.Millisecond},
		KindSoundFailure:     {MaxRetries: 1},
	})

	tests := []struct {
		kind Kind
		want Policy
	}{
		{KindWebGLContextLost, Policy{MaxRetries: 2, RetryDelay: time.Second}},
		{KindShaderCompilation, Policy{MaxRetries: 1}},
		{KindAnimationFailure, Policy{MaxRetries: 5, RetryDelay: time.Millisecond}},
		{KindGestureFailure, Policy{}},
	}
	for _, tt := range tests {
		got, ok := c.Policy(tt.kind)
		require.True(t, ok, tt.kind)
		assert.Equal(t, tt.want, got, tt.kind)
	}

	_, ok := c.Policy(KindSoundFailure)
	assert.False(t, ok, "sound failures stay unregistered even with an override")
}

func TestCommonStrategies_ShaderLowersFidelityThenDismisses(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{err: errRecover}
	var d dismissals
	c, _ := newTestController(t, WithRenderer(renderer), WithDismisser(d.dismiss))
	c.AddCommonStrategies(nil)

	outcome := c.HandleError(t.Context(), "t1", KindShaderCompilation, "compile error", nil)

	assert.Equal(t, OutcomeFallback, outcome)
	assert.Equal(t, 2, renderer.calls["fidelity"])
	assert.Equal(t, []string{"t1"}, d.ids)
}

func TestCommonStrategies_PermanentContextLossSkipsRetry(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	var d dismissals
	c, _ := newTestController(t, WithRenderer(renderer), WithDismisser(d.dismiss))
	c.AddCommonStrategies(nil)

	outcome := c.HandleError(t.Context(), "t1", KindWebGLContextLost, "context lost: permanent", nil)

	assert.Equal(t, OutcomeFallback, outcome)
	assert.Zero(t, renderer.calls["restore"])
	assert.Equal(t, []string{"t1"}, d.ids)
}

func TestCommonStrategies_AnimationRecovers(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	var d dismissals
	c, _ := newTestController(t, WithRenderer(renderer), WithDismisser(d.dismiss))
	c.AddCommonStrategies(map[Kind]Policy{KindAnimationFailure: {MaxRetries: 3}})

	assert.Equal(t, OutcomeRecovered, c.HandleError(t.Context(), "t1", KindAnimationFailure, "spring diverged", nil))
	assert.Equal(t, 1, renderer.calls["reset"])
	assert.Empty(t, d.ids)
}

func TestCommonStrategies_GestureIsObservational(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{}
	var d dismissals
	c, _ := newTestController(t, WithRenderer(renderer), WithDismisser(d.dismiss))
	c.AddCommonStrategies(nil)

	assert.Equal(t, OutcomeExhausted, c.HandleError(t.Context(), "t1", KindGestureFailure, "pointer lost", nil))
	assert.Empty(t, renderer.calls)
	assert.Empty(t, d.ids)
	assert.Len(t, c.ErrorLog(), 1)
}
