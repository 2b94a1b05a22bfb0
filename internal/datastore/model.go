package datastore

import (
	"time"

	"github.com/tphakala/toastd/internal/recovery"
)

// ErrorLogRecord is the persisted form of recovery.ErrorLogEntry
type ErrorLogRecord struct {
	ID              string         `gorm:"primaryKey;size:36"`
	Timestamp       time.Time      `gorm:"index;not null"`
	ToastID         string         `gorm:"index;size:64"`
	Kind            string         `gorm:"index;size:64;not null"`
	Message         string         `gorm:"type:text"`
	Context         map[string]any `gorm:"serializer:json"`
	UserAgent       string         `gorm:"size:512"`
	ViewportWidth   int
	ViewportHeight  int
	RecoveryAttempt int
	CreatedAt       time.Time
}

const tableErrorLogEntries = "error_log_entries"

// TableName pins the table name
func (ErrorLogRecord) TableName() string {
	return tableErrorLogEntries
}

func recordFromEntry(e *recovery.ErrorLogEntry) ErrorLogRecord {
	return ErrorLogRecord{
		ID:              e.ID,
		Timestamp:       e.Timestamp,
		ToastID:         e.ToastID,
		Kind:            string(e.Kind),
		Message:         e.Message,
		Context:         e.Context,
		UserAgent:       e.Environment.UserAgent,
		ViewportWidth:   e.Environment.Viewport.Width,
		ViewportHeight:  e.Environment.Viewport.Height,
		RecoveryAttempt: e.RecoveryAttempt,
	}
}

func (r *ErrorLogRecord) entry() recovery.ErrorLogEntry {
	return recovery.ErrorLogEntry{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		ToastID:   r.ToastID,
		Kind:      recovery.Kind(r.Kind),
		Message:   r.Message,
		Context:   r.Context,
		Environment: recovery.Environment{
			UserAgent: r.UserAgent,
			Viewport:  recovery.Viewport{Width: r.ViewportWidth, Height: r.ViewportHeight},
		},
		RecoveryAttempt: r.RecoveryAttempt,
	}
}
