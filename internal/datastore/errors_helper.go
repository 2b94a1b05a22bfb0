package datastore

import (
	"github.com/tphakala/toastd/internal/errors"
)

// Failures that leave the datastore unusable are high priority; failed reads are low.
var operationPriority = map[string]string{
	"create_directory": errors.PriorityHigh,
	"open":             errors.PriorityHigh,
	"auto_migrate":     errors.PriorityHigh,
	"save":             errors.PriorityMedium,
	"prune":            errors.PriorityMedium,
	"list":             errors.PriorityLow,
	"count":            errors.PriorityLow,
	"close":            errors.PriorityLow,
}

// dbError wraps a gorm or filesystem failure of operation
func dbError(err error, operation string, context map[string]any) error {
	b := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("table", tableErrorLogEntries)
	if p, ok := operationPriority[operation]; ok {
		b = b.Priority(p)
	}
	for k, v := range context {
		b = b.Context(k, v)
	}
	return b.Build()
}

// validationError rejects input before it reaches the database
func validationError(field, message string) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}
