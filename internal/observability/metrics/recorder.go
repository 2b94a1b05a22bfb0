package metrics

// Recorder is the minimal metrics surface a storage component depends on,
// so tests can pass a fake instead of Prometheus collectors.
type Recorder interface {
	// RecordOperation counts an operation ("save", "list") by status ("success", "error")
	RecordOperation(operation, status string)

	// RecordDuration observes how long an operation took, in seconds
	RecordDuration(operation string, seconds float64)

	// RecordError counts a failed operation by error category
	RecordError(operation, errorType string)
}
