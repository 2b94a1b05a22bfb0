package httpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/toastd/internal/recovery"
	"github.com/tphakala/toastd/internal/toast"
)

// ToastResponse is the wire form of a toast. Durations are in milliseconds; -1 never expires.
type ToastResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     string    `json:"variant"`
	Priority    string    `json:"priority"`
	Position    string    `json:"position"`
	DurationMs  int64     `json:"duration_ms"`
	RemainingMs int64     `json:"remaining_ms"`
	IsPaused    bool      `json:"is_paused"`
	Action      *string   `json:"action,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChangeResponse is one change event of the stream
type ChangeResponse struct {
	Type     string          `json:"type"`
	Reason   string          `json:"reason,omitempty"`
	Toast    ToastResponse   `json:"toast"`
	Snapshot []ToastResponse `json:"snapshot"`
}

// EnqueueRequest creates a toast. A missing duration uses the store default; -1 never expires.
type EnqueueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
	Priority    string `json:"priority"`
	Position    string `json:"position"`
	DurationMs  *int64 `json:"duration_ms"`
	Action      string `json:"action"`
}

// UpdateRequest patches a toast. Omitted fields are left alone.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Variant     *string `json:"variant"`
	Priority    *string `json:"priority"`
	Position    *string `json:"position"`
	Action      *string `json:"action"`
}

// EventRequest carries a presentation adapter event
type EventRequest struct {
	Type string `json:"type"` // hover_enter, hover_leave, swipe_dismiss or keyboard_dismiss
}

// FailureRequest reports a render failure of a toast
type FailureRequest struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

// TimingRequest reports a duration measured by the adapter
type TimingRequest struct {
	Kind       string  `json:"kind"`
	DurationMs float64 `json:"duration_ms"`
	ToastID    string  `json:"toast_id"`
}

// ConfigResponse is the wire form of the store configuration
type ConfigResponse struct {
	MaxToasts         int    `json:"max_toasts"`
	DefaultDurationMs int64  `json:"default_duration_ms"`
	DefaultPosition   string `json:"default_position"`
	Eviction          string `json:"eviction"`
}

// ConfigRequest patches the store configuration
type ConfigRequest struct {
	MaxToasts         *int    `json:"max_toasts"`
	DefaultDurationMs *int64  `json:"default_duration_ms"`
	DefaultPosition   *string `json:"default_position"`
	Eviction          *string `json:"eviction"`
}

func millis(d time.Duration) int64 {
	if d == toast.DurationInfinite {
		return -1
	}
	return d.Milliseconds()
}

func toToastResponse(t *toast.Toast) ToastResponse {
	resp := ToastResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Variant:     string(t.Variant),
		Priority:    t.Priority.String(),
		Position:    string(t.Position),
		DurationMs:  millis(t.Duration),
		RemainingMs: millis(t.Remaining),
		IsPaused:    t.IsPaused,
		CreatedAt:   t.CreatedAt,
	}
	if t.Action != nil {
		label := t.Action.Label
		resp.Action = &label
	}
	return resp
}

func toToastResponses(ts []toast.Toast) []ToastResponse {
	out := make([]ToastResponse, len(ts))
	for i := range ts {
		out[i] = toToastResponse(&ts[i])
	}
	return out
}

func toChangeResponse(c *toast.Change) ChangeResponse {
	return ChangeResponse{
		Type:     string(c.Type),
		Reason:   string(c.Reason),
		Toast:    toToastResponse(&c.Toast),
		Snapshot: toToastResponses(c.Snapshot),
	}
}

func toConfigResponse(cfg toast.Config) ConfigResponse {
	return ConfigResponse{
		MaxToasts:         cfg.MaxToasts,
		DefaultDurationMs: cfg.DefaultDuration.Milliseconds(),
		DefaultPosition:   string(cfg.DefaultPosition),
		Eviction:          string(cfg.Eviction),
	}
}

// build converts the request, rejecting unknown enum values
func (r *EnqueueRequest) build() (toast.Toast, error) {
	t := toast.Toast{
		Title:       r.Title,
		Description: r.Description,
		Variant:     toast.Variant(r.Variant),
		Position:    toast.Position(r.Position),
	}
	if r.Variant != "" && !t.Variant.Valid() {
		return t, fmt.Errorf("unknown variant %q", r.Variant)
	}
	if r.Position != "" && !t.Position.Valid() {
		return t, fmt.Errorf("unknown position %q", r.Position)
	}
	if r.Priority != "" {
		p, err := toast.ParsePriority(r.Priority)
		if err != nil {
			return t, err
		}
		t.Priority = p
	}
	if r.DurationMs != nil {
		switch {
		case *r.DurationMs < 0:
			t.Duration = toast.DurationInfinite
		case *r.DurationMs == 0:
			return t, fmt.Errorf("duration_ms must be positive or -1")
		default:
			t.Duration = time.Duration(*r.DurationMs) * time.Millisecond
		}
	}
	if r.Action != "" {
		t.Action = &toast.Action{Label: r.Action}
	}
	return t, nil
}

func (r *UpdateRequest) patch() (toast.Patch, error) {
	var p toast.Patch
	p.Title = r.Title
	p.Description = r.Description
	if r.Variant != nil {
		v := toast.Variant(*r.Variant)
		if !v.Valid() {
			return p, fmt.Errorf("unknown variant %q", *r.Variant)
		}
		p.Variant = &v
	}
	if r.Position != nil {
		pos := toast.Position(*r.Position)
		if !pos.Valid() {
			return p, fmt.Errorf("unknown position %q", *r.Position)
		}
		p.Position = &pos
	}
	if r.Priority != nil {
		prio, err := toast.ParsePriority(*r.Priority)
		if err != nil {
			return p, err
		}
		p.Priority = &prio
	}
	if r.Action != nil {
		p.Action = &toast.Action{Label: *r.Action}
	}
	return p, nil
}

func (r *ConfigRequest) patch() toast.ConfigPatch {
	var p toast.ConfigPatch
	p.MaxToasts = r.MaxToasts
	if r.DefaultDurationMs != nil {
		d := time.Duration(*r.DefaultDurationMs) * time.Millisecond
		p.DefaultDuration = &d
	}
	if r.DefaultPosition != nil {
		pos := toast.Position(*r.DefaultPosition)
		p.DefaultPosition = &pos
	}
	if r.Eviction != nil {
		ev := toast.EvictionPolicy(*r.Eviction)
		p.Eviction = &ev
	}
	return p
}

// failureKind normalizes "animation_failure" to ANIMATION_FAILURE
func failureKind(s string) recovery.Kind {
	return recovery.Kind(strings.ToUpper(strings.TrimSpace(s)))
}
