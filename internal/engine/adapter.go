package engine

import (
	"context"
	"time"

	"github.com/tphakala/toastd/internal/logger"
	"github.com/tphakala/toastd/internal/recovery"
	"github.com/tphakala/toastd/internal/toast"
)

// Interaction actions sent to analytics
const (
	actionHoverEnter      = "hover_enter"
	actionHoverLeave      = "hover_leave"
	actionSwipeDismiss    = "swipe_dismiss"
	actionKeyboardDismiss = "keyboard_dismiss"
)

// Enqueue adds a toast to the store and returns its id
func (e *Engine) Enqueue(t toast.Toast) string {
	return e.store.Enqueue(t)
}

// Subscribe streams store changes to a presentation adapter
func (e *Engine) Subscribe() (<-chan toast.Change, func()) {
	return e.store.Subscribe()
}

// HoverEnter pauses auto-dismiss while the pointer is over the toast
func (e *Engine) HoverEnter(id string) bool {
	e.trackInteraction(actionHoverEnter, id)
	return e.store.Pause(id)
}

// HoverLeave resumes auto-dismiss with the time left when the hover began
func (e *Engine) HoverLeave(id string) bool {
	e.trackInteraction(actionHoverLeave, id)
	return e.store.Resume(id)
}

// SwipeDismiss removes a toast the user dragged away
func (e *Engine) SwipeDismiss(id string) bool {
	e.trackInteraction(actionSwipeDismiss, id)
	return e.store.Dismiss(id)
}

// KeyboardDismiss removes a toast closed from the keyboard
func (e *Engine) KeyboardDismiss(id string) bool {
	e.trackInteraction(actionKeyboardDismiss, id)
	return e.store.Dismiss(id)
}

// RenderFailure hands a presentation failure to the recovery controller and
// blocks until the strategy settles. Close cancels a pending backoff; after
// Close the failure is dropped and OutcomeCancelled returned.
func (e *Engine) RenderFailure(ctx context.Context, id string, kind recovery.Kind, message string, metadata map[string]any) recovery.Outcome {
	if !e.begin() {
		return recovery.OutcomeCancelled
	}
	defer e.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	return e.recovery.HandleError(ctx, id, kind, message, metadata)
}

// ReportRenderFailure is the fire-and-forget form of RenderFailure used by
// adapters that cannot wait out the backoff. done, when not nil, receives the outcome.
func (e *Engine) ReportRenderFailure(id string, kind recovery.Kind, message string, metadata map[string]any, done func(recovery.Outcome)) {
	if !e.begin() {
		log.Debug("render failure dropped after close",
			logger.String("toast_id", id),
			logger.String("kind", string(kind)))
		return
	}

	go func() {
		defer e.inflight.Done()
		outcome := e.recovery.HandleError(e.ctx, id, kind, message, metadata)
		if done != nil {
			done(outcome)
		}
	}()
}

// ReportTiming records a duration the adapter measured itself, such as a frame
// or a gesture, against the threshold of kind.
func (e *Engine) ReportTiming(kind string, d time.Duration, id string) {
	var md map[string]any
	if id != "" {
		md = map[string]any{"toast_id": id}
	}
	e.monitor.Record(kind, d, md)
}

func (e *Engine) trackInteraction(action, id string) {
	if e.tracker != nil {
		e.tracker.TrackInteraction(action, id)
	}
}
