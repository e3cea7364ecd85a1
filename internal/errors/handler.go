package apperrors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ColorProvider supplies the ANSI sequences used when printing errors.
// A provider returning empty strings yields plain output.
type ColorProvider interface {
	Red() string
	Yellow() string
	Reset() string
}

// PlainColors is a ColorProvider without any escape sequences.
type PlainColors struct{}

func (PlainColors) Red() string    { return "" }
func (PlainColors) Yellow() string { return "" }
func (PlainColors) Reset() string  { return "" }

// HandleCalculationError prints err to out and maps it to an exit code.
// A nil error returns ExitSuccess without printing anything.
func HandleCalculationError(err error, duration time.Duration, out io.Writer, colors ColorProvider) int {
	if err == nil {
		return ExitSuccess
	}
	if colors == nil {
		colors = PlainColors{}
	}
	elapsed := ""
	if duration > 0 {
		elapsed = fmt.Sprintf(" after %s", duration.Round(time.Millisecond))
	}

	var (
		timeoutErr TimeoutError
		configErr  ConfigError
		calcErr    CalculationError
	)
	switch {
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(out, "%sStatus: Timeout%s. %v%s\n", colors.Yellow(), elapsed, err, colors.Reset())
		return ExitErrorTimeout
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(out, "%sStatus: Canceled%s.%s\n", colors.Yellow(), elapsed, colors.Reset())
		return ExitErrorCanceled
	case errors.As(err, &configErr):
		fmt.Fprintf(out, "%sConfiguration error: %v%s\n", colors.Red(), err, colors.Reset())
		return ExitErrorConfig
	case errors.As(err, &calcErr):
		hint := ""
		if calcErr.Retryable {
			hint = " (retryable)"
		}
		fmt.Fprintf(out, "%sStatus: Failure%s%s. %v%s\n", colors.Red(), elapsed, hint, err, colors.Reset())
		return ExitErrorCalculation
	default:
		fmt.Fprintf(out, "%sStatus: Failure%s. Unexpected error: %v%s\n", colors.Red(), elapsed, err, colors.Reset())
		return ExitErrorGeneric
	}
}
