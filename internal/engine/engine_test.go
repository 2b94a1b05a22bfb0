package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jonboulle/clockwork"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/httpclient"
	"github.com/tphakala/toastd/internal/recovery"
	"github.com/tphakala/toastd/internal/testutil"
	"github.com/tphakala/toastd/internal/toast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = time.Second
	tick    = time.Millisecond
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

func (r *fakeRenderer) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRenderer) RestoreContext(context.Context, string) error { return r.call("restore") }
func (r *fakeRenderer) LowerFidelity(context.Context, string) error  { return r.call("fidelity") }
func (r *fakeRenderer) ResetAnimation(context.Context, string) error { return r.call("reset") }

func newTestEngine(t *testing.T, settings *conf.Settings, opts ...Option) (*Engine, *clockwork.FakeClock) {
	t.Helper()

	if settings == nil {
		settings = conf.Default()
	}
	clock := clockwork.NewFakeClock()
	var n atomic.Int32
	all := append([]Option{
		WithClock(clock),
		WithIDGenerator(func() string { return fmt.Sprintf("t%d", n.Add(1)) }),
	}, opts...)

	e, err := New(settings, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e, clock
}

func TestNew_AppliesSettings(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	s.Toast.MaxToasts = 5
	s.Toast.Eviction = conf.EvictionOldest
	s.Recovery.Strategies["animation_failure"] = conf.StrategySettings{MaxRetries: 1, RetryDelay: 0}
	s.Performance.Thresholds["render"] = 10 * time.Millisecond

	e, _ := newTestEngine(t, s)

	cfg := e.Store().Config()
	assert.Equal(t, 5, cfg.MaxToasts)
	assert.Equal(t, toast.EvictOldest, cfg.Eviction)
	assert.Equal(t, 5*time.Second, cfg.DefaultDuration)

	p, ok := e.Recovery().Policy(recovery.KindAnimationFailure)
	require.True(t, ok)
	assert.Equal(t, recovery.Policy{MaxRetries: 1}, p)

	p, ok = e.Recovery().Policy(recovery.KindWebGLContextLost)
	require.True(t, ok)
	assert.Equal(t, recovery.Policy{MaxRetries: 2, RetryDelay: time.Second}, p)

	_, ok = e.Recovery().Policy(recovery.KindSoundFailure)
	assert.False(t, ok, "sound failures stay unregistered")

	threshold, ok := e.Monitor().Threshold("render")
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, threshold)
}

func TestPolicyOverrides_UppercasesKinds(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	got := PolicyOverrides(s)
	assert.Equal(t, recovery.Policy{MaxRetries: 3, RetryDelay: 500 * time.Millisecond}, got[recovery.KindAnimationFailure])
	assert.Equal(t, recovery.Policy{MaxRetries: 1}, got[recovery.KindShaderCompilation])
}

func TestHover_PausesAndResumesAutoDismiss(t *testing.T) {
	t.Parallel()

	e, clock := newTestEngine(t, nil)
	id := e.Enqueue(toast.Toast{Title: "saved", Duration: 5 * time.Second})

	clock.Advance(2 * time.Second)
	require.True(t, e.HoverEnter(id))
	assert.False(t, e.HoverEnter(id), "already paused")

	clock.Advance(10 * time.Second)
	got, ok := e.Store().Get(id)
	require.True(t, ok, "paused toasts never expire")
	assert.Equal(t, 3*time.Second, got.Remaining)

	require.True(t, e.HoverLeave(id))
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, e.Store().Len())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return e.Store().Len() == 0 }, waitFor, tick)
}

func TestDismissEvents(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, nil)
	a := e.Enqueue(toast.Toast{Title: "a"})
	b := e.Enqueue(toast.Toast{Title: "b"})

	assert.True(t, e.SwipeDismiss(a))
	assert.False(t, e.SwipeDismiss(a))
	assert.True(t, e.KeyboardDismiss(b))
	assert.False(t, e.KeyboardDismiss("missing"))
	assert.Zero(t, e.Store().Len())
}

func TestRenderFailure_ShaderFallbackDismisses(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{err: errors.New("compile failed")}
	e, _ := newTestEngine(t, nil, WithRenderer(r))

	var dismissed atomic.Int32
	id := e.Enqueue(toast.Toast{Title: "fancy", OnDismiss: func() { dismissed.Add(1) }})

	outcome := e.RenderFailure(t.Context(), id, recovery.KindShaderCompilation, "shader error", nil)
	assert.Equal(t, recovery.OutcomeFallback, outcome)
	assert.Equal(t, 2, r.count("fidelity"), "one retry after the initial attempt")
	assert.Zero(t, e.Store().Len())
	assert.Equal(t, int32(1), dismissed.Load())

	outcome = e.RenderFailure(t.Context(), id, recovery.KindShaderCompilation, "shader error", nil)
	assert.Equal(t, recovery.OutcomeToastGone, outcome)
	assert.Equal(t, 2, r.count("fidelity"))
	assert.Equal(t, int32(1), dismissed.Load())

	log, err := e.ErrorLog(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, log, 2, "every report is audited")
}

func TestRenderFailure_UnregisteredKindIsAudited(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	s.Environment.ViewportWidth = 1920
	s.Environment.ViewportHeight = 1080
	e, _ := newTestEngine(t, s)
	id := e.Enqueue(toast.Toast{Title: "ding"})

	outcome := e.RenderFailure(t.Context(), id, recovery.KindSoundFailure, "audio blocked", map[string]any{"codec": "ogg"})
	assert.Equal(t, recovery.OutcomeUnregistered, outcome)
	assert.Equal(t, 1, e.Store().Len(), "fail-open keeps the toast")

	log, err := e.ErrorLog(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, recovery.KindSoundFailure, log[0].Kind)
	assert.Equal(t, "toastd/dev", log[0].Environment.UserAgent)
	assert.Equal(t, "1920x1080", log[0].Environment.Device())
	assert.Equal(t, "ogg", log[0].Context["codec"])

	assert.InDelta(t, 1.0, promtestutil.ToFloat64(
		e.Metrics().Recovery.ErrorsHandledTotal.WithLabelValues(string(recovery.KindSoundFailure), "false")), 1e-9)
}

func TestRemovedToastsForgetRetryState(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	s.Recovery.Strategies["animation_failure"] = conf.StrategySettings{MaxRetries: 3}
	r := &fakeRenderer{}
	e, _ := newTestEngine(t, s, WithRenderer(r))

	id := e.Enqueue(toast.Toast{Title: "bouncy"})
	outcome := e.RenderFailure(t.Context(), id, recovery.KindAnimationFailure, "spring diverged", nil)
	assert.Equal(t, recovery.OutcomeRecovered, outcome)
	assert.Equal(t, 1, e.Recovery().Attempts(id, recovery.KindAnimationFailure))

	e.SwipeDismiss(id)
	assert.Zero(t, e.Recovery().Attempts(id, recovery.KindAnimationFailure))
}

func TestClose_CancelsPendingBackoff(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{err: errors.New("lost")}
	e, clock := newTestEngine(t, nil, WithRenderer(r))
	id := e.Enqueue(toast.Toast{Title: "3d", Duration: toast.DurationInfinite})

	outcomes := make(chan recovery.Outcome, 1)
	e.ReportRenderFailure(id, recovery.KindWebGLContextLost, "context lost", nil, func(o recovery.Outcome) {
		outcomes <- o
	})

	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "backoff is waiting on the clock")

	require.NoError(t, e.Close(t.Context()))
	assert.Equal(t, recovery.OutcomeCancelled, testutil.Receive(t, outcomes, testutil.DefaultTestTimeout, "render failure outcome"))
	assert.Zero(t, r.count("restore"))

	assert.Equal(t, recovery.OutcomeCancelled,
		e.RenderFailure(t.Context(), id, recovery.KindWebGLContextLost, "again", nil))
}

func TestReportTiming_BreachesThreshold(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, nil)

	e.ReportTiming("render", 80*time.Millisecond, "t1")
	e.ReportTiming("render", 20*time.Millisecond, "t1")

	assert.Equal(t, 50*time.Millisecond, e.Monitor().GetAverageMetric("render"))
	assert.InDelta(t, 1.0, promtestutil.ToFloat64(e.Metrics().Performance.BreachesTotal.WithLabelValues("render")), 1e-9)
}

func TestAnalytics_TracksInteractions(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	var mu sync.Mutex
	var actions []string
	transport.RegisterResponder(http.MethodPost, "https://collector.example.com/events",
		func(req *http.Request) (*http.Response, error) {
			var body struct {
				Events []struct {
					Category string `json:"category"`
					Action   string `json:"action"`
				} `json:"events"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ev := range body.Events {
				actions = append(actions, ev.Category+":"+ev.Action)
			}
			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})

	s := conf.Default()
	s.Analytics.Enabled = true
	s.Analytics.Endpoint = "https://collector.example.com/events"
	s.Analytics.FlushInterval = time.Hour

	client := httpclient.New(&httpclient.Config{Transport: transport})
	e, _ := newTestEngine(t, s, WithAnalyticsClient(client))
	e.Start()

	id := e.Enqueue(toast.Toast{Title: "x"})
	e.HoverEnter(id)
	e.HoverLeave(id)
	e.SwipeDismiss(id)
	e.RenderFailure(t.Context(), "gone", recovery.KindSoundFailure, "muted", nil)

	require.NoError(t, e.Close(t.Context()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"interaction:hover_enter",
		"interaction:hover_leave",
		"interaction:swipe_dismiss",
		"error:SOUND_FAILURE",
	}, actions)
}

func TestDatastore_PersistsErrorLog(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	s.Datastore.Enabled = true
	s.Datastore.Path = filepath.Join(t.TempDir(), "toastd.db")

	e, clock := newTestEngine(t, s)
	e.RenderFailure(t.Context(), "t9", recovery.KindSoundFailure, "first", nil)
	clock.Advance(time.Second)
	e.RenderFailure(t.Context(), "t9", recovery.KindSoundFailure, "second", nil)

	entries, err := e.ErrorLog(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Message)
	assert.InDelta(t, 2.0, promtestutil.ToFloat64(
		e.Metrics().Datastore.OperationsTotal.WithLabelValues("save", "success")), 1e-9)
}

func TestStart_PrunesExpiredErrorLog(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	s.Datastore.Enabled = true
	s.Datastore.Path = filepath.Join(t.TempDir(), "toastd.db")
	s.Datastore.Retention = 24 * time.Hour

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first, _ := newTestEngine(t, s, WithClock(clockwork.NewFakeClockAt(start)))
	first.RenderFailure(t.Context(), "t1", recovery.KindSoundFailure, "old", nil)
	require.NoError(t, first.Close(t.Context()))

	second, _ := newTestEngine(t, s, WithClock(clockwork.NewFakeClockAt(start.Add(48*time.Hour))))
	second.Start()

	entries, err := second.ErrorLog(t.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.InDelta(t, 1.0, promtestutil.ToFloat64(
		second.Metrics().Datastore.OperationsTotal.WithLabelValues("prune", "success")), 1e-9)
}

func TestNew_InvalidAnalyticsFails(t *testing.T) {
	t.Parallel()

	s := conf.Default()
	s.Analytics.Enabled = true

	_, err := New(s, WithClock(clockwork.NewFakeClock()))
	require.Error(t, err)
}
