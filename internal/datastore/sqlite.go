package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/toastd/internal/logger"
)

// slowQueryThreshold promotes slower statements to WARN
const slowQueryThreshold = 200 * time.Millisecond

// OpenSQLite opens (creating if needed) the database at path and migrates the schema.
func OpenSQLite(path string) (*ErrorLogRepository, error) {
	if path == "" {
		return nil, validationError("path", "sqlite path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbError(err, "create_directory", map[string]any{"path": dir})
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, dbError(err, "open", map[string]any{"path": path})
	}

	repo, err := NewErrorLogRepository(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}

	log.Info("error log datastore opened", logger.String("path", path))
	return repo, nil
}
