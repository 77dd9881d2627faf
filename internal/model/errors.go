package model

import "errors"

var (
	ErrInvalidSpec       = errors.New("invalid scan spec")
	ErrQueueUnavailable  = errors.New("queue backend unavailable")
	ErrExecutionTimeout  = errors.New("scanner execution timed out")
	ErrNotFound          = errors.New("report not generated yet")
	ErrCorrupt           = errors.New("report content is corrupt")
	ErrUnknownReportType = errors.New("unknown report type")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotActive      = errors.New("job is not active")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert status transition")
	ErrNoScanner         = errors.New("no scanner configured for job type")
)

// ValidationError represents a field-level validation failure of a scan spec.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap lets errors.Is(err, ErrInvalidSpec) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSpec
}
