// Package toast owns the authoritative, priority-ordered set of visible toast
// notifications together with their auto-dismiss timers.
package toast

import (
	"fmt"
	"strings"
	"time"
)

// Variant is the visual flavour of a toast. The store passes it through untouched.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
	VariantWarning     Variant = "warning"
)

// Valid reports whether v is a known variant
func (v Variant) Valid() bool {
	switch v {
	case VariantDefault, VariantSuccess, VariantDestructive, VariantWarning:
		return true
	}
	return false
}

// Position is the screen corner a toast is drawn in
type Position string

const (
	PositionTopLeft     Position = "top-left"
	PositionTopRight    Position = "top-right"
	PositionBottomLeft  Position = "bottom-left"
	PositionBottomRight Position = "bottom-right"
)

// Valid reports whether p is one of the four corners
func (p Position) Valid() bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight:
		return true
	}
	return false
}

// Priority orders toasts in the active set; higher values are shown first and evicted last.
// The zero value means "unset" and is stored as PriorityNormal.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

// String returns the lower-case name of the priority
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority parses a priority name
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (p Priority) MarshalText() ([]byte, error) {
	if _, ok := priorityNames[p]; !ok {
		return nil, fmt.Errorf("unknown priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Priority) UnmarshalText(b []byte) error {
	parsed, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DurationInfinite marks a toast that never auto-dismisses
const DurationInfinite time.Duration = -1

// Action is an optional call-to-action button rendered on a toast
type Action struct {
	Label   string
	OnClick func()
}

// Toast is a notification record. Values returned by the store are copies.
type Toast struct {
	ID          string
	Title       string
	Description string
	Variant     Variant
	Priority    Priority
	Position    Position

	// Duration until auto-dismiss. Zero means the store default; DurationInfinite never expires.
	Duration time.Duration

	Action *Action

	// OnDismiss is called at most once, when the toast leaves the active set for any reason.
	OnDismiss func()

	IsPaused  bool
	Remaining time.Duration // time left before auto-dismiss; DurationInfinite when it never expires
	CreatedAt time.Time
}

// Finite reports whether the toast auto-dismisses
func (t *Toast) Finite() bool {
	return t.Duration != DurationInfinite
}

// Patch holds the fields Update merges into an existing toast. Nil fields are left alone.
// Duration is not patchable; updates never touch timers.
type Patch struct {
	Title       *string
	Description *string
	Variant     *Variant
	Priority    *Priority
	Position    *Position
	Action      *Action
	OnDismiss   func()
}

// EvictionPolicy selects which lowest-priority toast leaves when the set is over capacity
type EvictionPolicy string

const (
	// EvictNewest drops the most recently added toast of the lowest priority
	EvictNewest EvictionPolicy = "newest"
	// EvictOldest drops the oldest toast of the lowest priority
	EvictOldest EvictionPolicy = "oldest"
)

// Config holds the defaults applied to subsequently enqueued toasts
type Config struct {
	MaxToasts       int
	DefaultDuration time.Duration // <= 0 means toasts without a duration never expire
	DefaultPosition Position
	Eviction        EvictionPolicy
	// SubscriberBuffer is the channel capacity of each Subscribe call
	SubscriberBuffer int
}

// DefaultConfig returns the stock store configuration
func DefaultConfig() Config {
	return Config{
		MaxToasts:        3,
		DefaultDuration:  5 * time.Second,
		DefaultPosition:  PositionBottomRight,
		Eviction:         EvictNewest,
		SubscriberBuffer: 64,
	}
}

// ConfigPatch adjusts a subset of Config. Nil fields are left alone.
type ConfigPatch struct {
	MaxToasts       *int
	DefaultDuration *time.Duration
	DefaultPosition *Position
	Eviction        *EvictionPolicy
}

// ChangeType classifies a change notification
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// RemovalReason explains why a toast left the active set
type RemovalReason string

const (
	ReasonDismissed RemovalReason = "dismissed"
	ReasonExpired   RemovalReason = "expired"
	ReasonEvicted   RemovalReason = "evicted"
	ReasonCleared   RemovalReason = "cleared"
)

// Change is one incremental notification delivered to subscribers
type Change struct {
	Type     ChangeType
	Toast    Toast
	Reason   RemovalReason // set for ChangeRemoved
	Snapshot []Toast       // ordered active set after the change
}

// Recorder receives store metrics. Implemented by metrics.ToastMetrics.
type Recorder interface {
	RecordEnqueued(priority string)
	RecordRemoved(reason string)
	RecordDroppedChange()
	SetActive(active, paused int)
}

type noopRecorder struct{}

func (noopRecorder) RecordEnqueued(string) {}
func (noopRecorder) RecordRemoved(string)  {}
func (noopRecorder) RecordDroppedChange()  {}
func (noopRecorder) SetActive(int, int)    {}
