package apperrors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Application exit codes define the standard exit statuses for the application.
// These codes are used to signal the outcome of the program execution to the OS.
const (
	ExitSuccess          = 0   // Indicates successful execution.
	ExitErrorGeneric     = 1   // Indicates a generic error.
	ExitErrorTimeout     = 2   // Indicates the operation timed out.
	ExitErrorCalculation = 3   // Indicates the calculation finished in the error state.
	ExitErrorConfig      = 4   // Indicates a configuration error.
	ExitErrorCanceled    = 130 // Indicates the operation was canceled (e.g., SIGINT).
)

// ConfigError represents a user configuration error, such as invalid flags or
// values. It indicates that the application cannot proceed due to incorrect user input.
type ConfigError struct {
	// Message explains the specific configuration error.
	Message string
}

// Error returns the error message for a ConfigError.
func (e ConfigError) Error() string { return e.Message }

// NewConfigError creates a new ConfigError with a formatted message.
func NewConfigError(format string, a ...any) error {
	return ConfigError{Message: fmt.Sprintf(format, a...)}
}

// CalculationError describes a calculation that ended in the error state. Code
// is the machine-readable failure code recorded in the status; Retryable tells
// callers whether restarting the calculation may succeed.
type CalculationError struct {
	// Code is the failure code, e.g. HOUSEHOLD_CALC_FAILED.
	Code string
	// Retryable reports whether an explicit retry may succeed.
	Retryable bool
	// Cause is the underlying error that triggered this calculation error.
	Cause error
}

// Error returns the code and the message of the underlying cause.
func (e CalculationError) Error() string {
	if e.Cause == nil {
		return e.Code
	}
	if e.Code == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Cause.Error())
}

// Unwrap returns the original wrapped error, allowing for error chain
// inspection (e.g., using errors.Is or errors.As).
func (e CalculationError) Unwrap() error { return e.Cause }

// PersistError reports a failed write of a completed result to durable
// storage. It never changes the cached status of the calculation.
type PersistError struct {
	// Target is the resource kind being written ("report" or "simulation").
	Target string
	// ID identifies the resource.
	ID string
	// Cause is the last error returned by the writer.
	Cause error
}

// Error returns a formatted message describing the persistence failure.
func (e PersistError) Error() string {
	return fmt.Sprintf("persist %s %q: %v", e.Target, e.ID, e.Cause)
}

// Unwrap returns the writer error.
func (e PersistError) Unwrap() error { return e.Cause }

// TimeoutError represents a calculation timeout. It captures the operation
// name and the duration limit that was exceeded.
type TimeoutError struct {
	// Operation is the name of the operation that timed out.
	Operation string
	// Limit is the duration after which the operation was considered timed out.
	Limit time.Duration
}

// Error returns a formatted message describing the timeout.
func (e TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.Operation, e.Limit)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ValidationError represents an input validation failure. It identifies which
// field failed validation and provides a human-readable explanation.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string
	// Message explains the validation failure.
	Message string
}

// Error returns a formatted message describing the validation failure.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// WrapError wraps an error with additional context using fmt.Errorf and %w.
// This allows the wrapped error to be unwrapped with errors.Unwrap() and
// checked with errors.Is() and errors.As().
//
// Parameters:
//   - err: The error to wrap.
//   - format: A format string for the context message.
//   - args: Arguments for the format string.
//
// Returns:
//   - error: The wrapped error, or nil if err is nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsContextError checks if the error is a context cancellation or deadline exceeded error.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether err carries a retryable CalculationError.
func IsRetryable(err error) bool {
	var calcErr CalculationError
	if errors.As(err, &calcErr) {
		return calcErr.Retryable
	}
	return false
}
