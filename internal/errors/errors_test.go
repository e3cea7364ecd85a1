package apperrors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"config", NewConfigError("unknown mode %q", "batch"), `unknown mode "batch"`},
		{"calculation with code", CalculationError{Code: "HOUSEHOLD_CALC_FAILED", Cause: errors.New("household not found")}, "HOUSEHOLD_CALC_FAILED: household not found"},
		{"calculation without code", CalculationError{Cause: errors.New("backend returned 500")}, "backend returned 500"},
		{"calculation without cause", CalculationError{Code: "UNKNOWN_STATUS"}, "UNKNOWN_STATUS"},
		{"persist", PersistError{Target: "report", ID: "r-7", Cause: errors.New("503")}, `persist report "r-7": 503`},
		{"timeout", TimeoutError{Operation: "sim-1", Limit: 30 * time.Second}, `operation "sim-1" timed out after 30s`},
		{"validation", ValidationError{Field: "Request.CalcID", Message: "must be set"}, `validation error for "Request.CalcID": must be set`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorChains(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")

	t.Run("calculation unwraps its cause", func(t *testing.T) {
		t.Parallel()
		err := WrapError(CalculationError{Code: "POLL_FAILED", Cause: cause}, "wait")
		if !errors.Is(err, cause) {
			t.Error("errors.Is should reach the cause")
		}
		var calcErr CalculationError
		if !errors.As(err, &calcErr) || calcErr.Code != "POLL_FAILED" {
			t.Errorf("errors.As = %+v", calcErr)
		}
	})

	t.Run("persist unwraps the writer error", func(t *testing.T) {
		t.Parallel()
		err := WrapError(PersistError{Target: "simulation", ID: "s1", Cause: cause}, "finalize")
		var persistErr PersistError
		if !errors.As(err, &persistErr) || persistErr.ID != "s1" {
			t.Errorf("errors.As = %+v", persistErr)
		}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should reach the writer error")
		}
	})

	t.Run("timeout matches the deadline", func(t *testing.T) {
		t.Parallel()
		err := WrapError(TimeoutError{Operation: "sim-1", Limit: time.Second}, "run")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Error("TimeoutError should match context.DeadlineExceeded")
		}
		if !IsContextError(err) {
			t.Error("TimeoutError should count as a context error")
		}
	})
}

func TestWrapError(t *testing.T) {
	t.Parallel()
	if WrapError(nil, "ignored") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	err := WrapError(context.Canceled, "GET %s", "/us/household/hh-1/policy/2")
	if got, want := err.Error(), "GET /us/household/hh-1/policy/2: context canceled"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("wrapped error lost context.Canceled")
	}
}

func TestIsContextError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{context.Canceled, true},
		{context.DeadlineExceeded, true},
		{WrapError(context.Canceled, "poll"), true},
		{errors.New("backend returned 502"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsContextError(tt.err); got != tt.want {
			t.Errorf("IsContextError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable calculation", CalculationError{Code: "SOCIETY_WIDE_CALC_FAILED", Retryable: true}, true},
		{"wrapped retryable", WrapError(CalculationError{Retryable: true}, "fan-out"), true},
		{"final calculation", CalculationError{Code: "UNKNOWN_STATUS"}, false},
		{"other error", NewConfigError("bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	t.Parallel()
	codes := map[string]int{
		"ExitSuccess":          ExitSuccess,
		"ExitErrorGeneric":     ExitErrorGeneric,
		"ExitErrorTimeout":     ExitErrorTimeout,
		"ExitErrorCalculation": ExitErrorCalculation,
		"ExitErrorConfig":      ExitErrorConfig,
		"ExitErrorCanceled":    ExitErrorCanceled,
	}
	if ExitSuccess != 0 || ExitErrorCanceled != 130 {
		t.Errorf("ExitSuccess = %d, ExitErrorCanceled = %d", ExitSuccess, ExitErrorCanceled)
	}
	seen := make(map[int]string)
	for name, code := range codes {
		if other, ok := seen[code]; ok {
			t.Errorf("exit code %d shared by %s and %s", code, other, name)
		}
		seen[code] = name
	}
}
