package demo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/engine"
	"github.com/tphakala/toastd/internal/recovery"
	"github.com/tphakala/toastd/internal/toast"
)

// Command creates the demo command, which plays a scripted session and prints
// every change the store publishes.
func Command(settings *conf.Settings) *cobra.Command {
	var step time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Play a scripted toast session",
		Long:  "Enqueues, hovers, fails and dismisses toasts on the real clock and prints each change event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, cmd.OutOrStdout(), step)
		},
	}

	cmd.Flags().DurationVar(&step, "step", 700*time.Millisecond, "Pause between scripted actions")

	return cmd
}

// flakyRenderer loses its graphics context once, then recovers
type flakyRenderer struct {
	mu       sync.Mutex
	restored int
}

func (r *flakyRenderer) RestoreContext(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restored++
	if r.restored == 1 {
		return fmt.Errorf("context still lost")
	}
	return nil
}

func (r *flakyRenderer) LowerFidelity(context.Context, string) error  { return nil }
func (r *flakyRenderer) ResetAnimation(context.Context, string) error { return nil }

// lockedWriter serializes writes from the change printer and the script
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// Run plays the session. Retry delays are shortened so it finishes in seconds.
func Run(ctx context.Context, settings *conf.Settings, w io.Writer, step time.Duration) error {
	out := &lockedWriter{w: w}
	s := *settings
	s.HTTP.Enabled = false
	s.Toast.MaxToasts = 3
	s.Toast.DefaultDuration = 6 * step
	s.Recovery.Strategies = map[string]conf.StrategySettings{
		"webgl_context_lost": {MaxRetries: 2, RetryDelay: step / 2},
	}

	eng, err := engine.New(&s, engine.WithRenderer(&flakyRenderer{}))
	if err != nil {
		return err
	}
	eng.Start()

	changes, unsubscribe := eng.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for c := range changes {
			printChange(out, &c)
		}
	}()

	wait := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	script := []func(){
		func() { eng.Enqueue(toast.Toast{Title: "Saved", Variant: toast.VariantSuccess}) },
		func() { eng.Enqueue(toast.Toast{Title: "Sync delayed", Variant: toast.VariantWarning, Priority: toast.PriorityLow}) },
		func() {
			eng.Enqueue(toast.Toast{
				Title:    "Connection lost",
				Variant:  toast.VariantDestructive,
				Priority: toast.PriorityUrgent,
				Duration: toast.DurationInfinite,
				Action:   &toast.Action{Label: "Retry"},
			})
		},
		func() { eng.Enqueue(toast.Toast{Title: "Tip of the day", Priority: toast.PriorityLow}) },
		func() { eng.HoverEnter(firstID(eng)) },
		func() { eng.HoverLeave(firstID(eng)) },
		func() {
			outcome := eng.RenderFailure(ctx, firstID(eng), recovery.KindWebGLContextLost, "context lost", nil)
			fmt.Fprintf(out, "%-8s %s\n", "recovery", outcome)
		},
		func() { eng.KeyboardDismiss(firstID(eng)) },
	}

	for _, action := range script {
		action()
		if !wait(step) {
			break
		}
	}
	wait(6 * step)

	unsubscribe()
	<-printed

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return eng.Close(closeCtx)
}

func firstID(eng *engine.Engine) string {
	if snap := eng.Store().Snapshot(); len(snap) > 0 {
		return snap[0].ID
	}
	return ""
}

func printChange(out io.Writer, c *toast.Change) {
	titles := make([]string, len(c.Snapshot))
	for i := range c.Snapshot {
		t := &c.Snapshot[i]
		mark := ""
		if t.IsPaused {
			mark = " (paused)"
		}
		titles[i] = fmt.Sprintf("[%s] %s%s", t.Priority, t.Title, mark)
	}
	what := string(c.Type)
	if c.Reason != "" {
		what += ":" + string(c.Reason)
	}
	fmt.Fprintf(out, "%-8s %-18s %-16q %s\n", "change", what, c.Toast.Title, strings.Join(titles, ", "))
}
