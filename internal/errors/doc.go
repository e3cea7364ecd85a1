// Package apperrors defines the error classes of policycalc and maps them to
// process exit codes.
//
// A calculation that ends in the error state surfaces as CalculationError,
// carrying the failure code stored in its status. Configuration mistakes are
// ConfigError, failed result writes are PersistError, and a run that hits its
// deadline is TimeoutError. All wrapping types implement Unwrap, so callers
// use errors.Is and errors.As rather than type switches.
package apperrors
