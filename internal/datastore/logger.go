// Package datastore keeps a durable copy of the recovery error log in SQLite.
package datastore

import "github.com/tphakala/toastd/internal/logger"

// Package-level cached logger instance
var log = logger.Global().Module("datastore")

// GetLogger returns the datastore module logger
func GetLogger() logger.Logger {
	return log
}
