package datastore

import (
	"context"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/observability/metrics"
	"github.com/tphakala/toastd/internal/recovery"
)

// ErrorLogRepository appends error log entries and reads them back.
// It implements recovery.Persister.
type ErrorLogRepository struct {
	db      *gorm.DB
	metrics metrics.Recorder // optional
}

// ListOptions filters List results. Zero values match everything.
type ListOptions struct {
	Kind    recovery.Kind
	ToastID string
	Since   time.Time
	Limit   int // newest entries kept when positive
}

// NewErrorLogRepository migrates the schema on db and returns the repository
func NewErrorLogRepository(db *gorm.DB) (*ErrorLogRepository, error) {
	if err := db.AutoMigrate(&ErrorLogRecord{}); err != nil {
		return nil, dbError(err, "auto_migrate", nil)
	}
	return &ErrorLogRepository{db: db}, nil
}

// SetMetrics records operation counts and latency on m
func (r *ErrorLogRepository) SetMetrics(m metrics.Recorder) {
	r.metrics = m
}

// observe records the outcome of an operation started at start
func (r *ErrorLogRepository) observe(operation string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordOperation(operation, "error")
		r.metrics.RecordError(operation, string(errors.CategoryOf(err)))
		return
	}
	r.metrics.RecordOperation(operation, "success")
}

// SaveErrorLogEntry appends one entry
func (r *ErrorLogRepository) SaveErrorLogEntry(ctx context.Context, entry recovery.ErrorLogEntry) (err error) {
	defer func(start time.Time) { r.observe("save", start, err) }(time.Now())

	if entry.ID == "" {
		return validationError("id", "error log entry id cannot be empty")
	}
	if entry.Kind == "" {
		return validationError("kind", "error log entry kind cannot be empty")
	}

	rec := recordFromEntry(&entry)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return dbError(err, "save", map[string]any{
			"kind":     string(entry.Kind),
			"toast_id": entry.ToastID,
		})
	}
	return nil
}

// List returns matching entries oldest first
func (r *ErrorLogRepository) List(ctx context.Context, opts ListOptions) (_ []recovery.ErrorLogEntry, err error) {
	defer func(start time.Time) { r.observe("list", start, err) }(time.Now())

	query := r.db.WithContext(ctx).Model(&ErrorLogRecord{})
	if opts.Kind != "" {
		query = query.Where("kind = ?", string(opts.Kind))
	}
	if opts.ToastID != "" {
		query = query.Where("toast_id = ?", opts.ToastID)
	}
	if !opts.Since.IsZero() {
		query = query.Where("timestamp >= ?", opts.Since)
	}

	var records []ErrorLogRecord
	if opts.Limit > 0 {
		// newest N, then back to chronological order; rowid breaks timestamp ties
		query = query.Order("timestamp DESC").Order("rowid DESC").Limit(opts.Limit)
		if err := query.Find(&records).Error; err != nil {
			return nil, dbError(err, "list", nil)
		}
		slices.Reverse(records)
	} else {
		if err := query.Order("timestamp ASC").Order("rowid ASC").Find(&records).Error; err != nil {
			return nil, dbError(err, "list", nil)
		}
	}

	entries := make([]recovery.ErrorLogEntry, len(records))
	for i := range records {
		entries[i] = records[i].entry()
	}
	return entries, nil
}

// Count returns the number of stored entries
func (r *ErrorLogRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&ErrorLogRecord{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count", nil)
	}
	return n, nil
}

// Prune deletes entries older than before and reports how many were removed
func (r *ErrorLogRepository) Prune(ctx context.Context, before time.Time) (_ int64, err error) {
	defer func(start time.Time) { r.observe("prune", start, err) }(time.Now())

	result := r.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&ErrorLogRecord{})
	if result.Error != nil {
		return 0, dbError(result.Error, "prune", map[string]any{
			"before": before.Format(time.RFC3339),
		})
	}
	return result.RowsAffected, nil
}

// Close releases the underlying connection pool
func (r *ErrorLogRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return dbError(err, "close", nil)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", nil)
	}
	return nil
}
