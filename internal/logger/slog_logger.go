package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewSlogLogger creates a standalone JSON logger writing to w.
// A nil writer discards output. Used in tests and by adapters that need a Logger
// before the central logger is configured.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newJSONHandler(w, lvl, tz)),
		level:  lvl,
	}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}
