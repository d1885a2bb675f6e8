package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldGroup     = "group"
	FieldItem      = "item"
	FieldPath      = "path"
	FieldMagnet    = "magnet"
	FieldOutcome   = "outcome"
	FieldAttempt   = "attempt"
	FieldCycleID   = "cycle_id"
)
