package engine

import "github.com/tphakala/toastd/internal/logger"

// Package-level cached logger instance
var log = logger.Global().Module("engine")
