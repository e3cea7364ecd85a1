package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/format"
	"github.com/agbru/policycalc/internal/orchestration"
	"github.com/agbru/policycalc/internal/ui"
)

// CLIProgressReporter implements orchestration.ProgressReporter with a
// spinner and a progress bar.
type CLIProgressReporter struct{}

var _ orchestration.ProgressReporter = CLIProgressReporter{}

// DisplayProgress displays a spinner and progress bar for ongoing calculations.
func (CLIProgressReporter) DisplayProgress(wg *sync.WaitGroup, updates <-chan orchestration.AggregateStatus, numCalculations int, out io.Writer) {
	DisplayProgress(wg, updates, numCalculations, out)
}

// CLIColorProvider feeds the current theme to apperrors.HandleCalculationError.
type CLIColorProvider struct{}

func (CLIColorProvider) Red() string    { return ui.ColorRed() }
func (CLIColorProvider) Yellow() string { return ui.ColorYellow() }
func (CLIColorProvider) Reset() string  { return ui.ColorReset() }

// CLIResultPresenter implements orchestration.ResultPresenter and
// orchestration.ErrorHandler for terminal output.
type CLIResultPresenter struct{}

var (
	_ orchestration.ResultPresenter = CLIResultPresenter{}
	_ orchestration.ErrorHandler    = CLIResultPresenter{}
)

// PresentSummary prints one row per calculation with its type, final state
// and duration. Padding is computed by hand so ANSI codes do not skew the
// columns.
func (CLIResultPresenter) PresentSummary(results []orchestration.RunResult, out io.Writer) {
	fmt.Fprintf(out, "\n--- Calculation Summary ---\n")

	maxIDLen := len("Calculation")
	maxDurationLen := len("Duration")
	for _, res := range results {
		maxIDLen = max(maxIDLen, len(res.Request.CalcID))
		maxDurationLen = max(maxDurationLen, len(format.FormatExecutionDuration(res.Duration)))
	}

	fmt.Fprintf(out, "  %s%s  %-11s  %s%s  %s\n",
		"Calculation", padRight("", maxIDLen-len("Calculation")),
		"Type",
		padRight("", maxDurationLen-len("Duration")), "Duration",
		"Status")

	for _, res := range results {
		duration := format.FormatExecutionDuration(res.Duration)
		fmt.Fprintf(out, "  %s%s%s%s  %-11s  %s%s%s%s  %s\n",
			ui.ColorBlue(), res.Request.CalcID, ui.ColorReset(), padRight("", maxIDLen-len(res.Request.CalcID)),
			res.Request.CalcType,
			padRight("", maxDurationLen-len(duration)), ui.ColorYellow(), duration, ui.ColorReset(),
			statusLabel(res))
	}
}

func statusLabel(res orchestration.RunResult) string {
	if res.StartErr != nil {
		return fmt.Sprintf("%s❌ %v%s", ui.ColorRed(), res.StartErr, ui.ColorReset())
	}
	switch res.Status.State {
	case calc.StateComplete:
		return fmt.Sprintf("%s✅ Complete%s", ui.ColorGreen(), ui.ColorReset())
	case calc.StateError:
		label := "❌ Error"
		if e := res.Status.Error; e != nil {
			label += fmt.Sprintf(" (%s)", e.Code)
			if e.Retryable {
				label += " retryable"
			}
		}
		return ui.ColorRed() + label + ui.ColorReset()
	}
	return fmt.Sprintf("%s⏳ %s%s", ui.ColorYellow(), res.Status.State, ui.ColorReset())
}

// padRight appends length spaces to s.
func padRight(s string, length int) string {
	if length <= 0 {
		return s
	}
	return s + fmt.Sprintf("%*s", length, "")
}

// PresentResult displays the result of one finished calculation.
func (CLIResultPresenter) PresentResult(result orchestration.RunResult, verbose bool, out io.Writer) {
	DisplayResult(result.Status, result.Duration, verbose, out)
}

// HandleError handles calculation errors and returns an appropriate exit code.
func (CLIResultPresenter) HandleError(err error, duration time.Duration, out io.Writer) int {
	return apperrors.HandleCalculationError(err, duration, out, CLIColorProvider{})
}
