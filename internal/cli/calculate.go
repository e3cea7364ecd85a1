package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/config"
	"github.com/agbru/policycalc/internal/ui"
)

// PrintExecutionConfig displays the backend, policies and polling settings
// of the run.
func PrintExecutionConfig(cfg config.AppConfig, out io.Writer) {
	fmt.Fprintf(out, "--- Execution Configuration ---\n")
	fmt.Fprintf(out, "Backend %s%s%s (country %s%s%s), timeout %s%s%s.\n",
		ui.ColorCyan(), cfg.APIURL, ui.ColorReset(),
		ui.ColorMagenta(), cfg.Country, ui.ColorReset(),
		ui.ColorYellow(), cfg.Timeout, ui.ColorReset())
	reform := cfg.Reform
	if reform == "" {
		reform = "none"
	}
	fmt.Fprintf(out, "Policies: baseline %s%s%s, reform %s%s%s.\n",
		ui.ColorCyan(), cfg.Baseline, ui.ColorReset(), ui.ColorCyan(), reform, ui.ColorReset())
	fmt.Fprintf(out, "Polling every %s%s%s, results persisted to %s%s%s.\n",
		ui.ColorCyan(), cfg.PollInterval, ui.ColorReset(), ui.ColorCyan(), cfg.Persist, ui.ColorReset())
}

// PrintExecutionMode describes what is about to run.
func PrintExecutionMode(requests []calc.Request, units []string, out io.Writer) {
	var modeDesc string
	switch {
	case len(units) > 0:
		modeDesc = fmt.Sprintf("Society-wide fan-out over %s%d%s regions", ui.ColorGreen(), len(units), ui.ColorReset())
	case len(requests) == 1:
		r := requests[0]
		modeDesc = fmt.Sprintf("Single %s%s%s calculation %s", ui.ColorGreen(), r.CalcType, ui.ColorReset(), r.CalcID)
	default:
		ids := make([]string, len(requests))
		for i, r := range requests {
			ids[i] = r.CalcID
		}
		modeDesc = fmt.Sprintf("%d calculations (%s)", len(requests), strings.Join(ids, ", "))
	}
	fmt.Fprintf(out, "Execution mode: %s.\n", modeDesc)
	fmt.Fprintf(out, "\n--- Starting Execution ---\n")
}
