package perfmon

import "github.com/tphakala/toastd/internal/logger"

var log = logger.Global().Module("perfmon")
