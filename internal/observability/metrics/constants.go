package metrics

// Namespace prefixes every toastd metric name
const Namespace = "toastd"

// DurationBuckets spans frame budgets (a few ms) up to slow recoveries (seconds).
var DurationBuckets = []float64{0.001, 0.004, 0.008, 0.016, 0.033, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
