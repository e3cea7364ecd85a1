package app

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/cli"
	"github.com/agbru/policycalc/internal/config"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/orchestration"
)

// runCalculate runs the configured calculation once and reports the outcome.
func (a *Application) runCalculate(ctx context.Context, rt *services, out io.Writer) int {
	ctx, cancelTimeout := context.WithTimeout(ctx, a.Config.Timeout)
	defer cancelTimeout()

	requests := a.requests()
	var units []string
	if a.Config.Mode == config.ModeDistricts {
		units = a.units()
	}

	if !a.Config.Quiet {
		cli.PrintExecutionConfig(a.Config, out)
		cli.PrintExecutionMode(requests, units, out)
	}

	var progressReporter orchestration.ProgressReporter = cli.CLIProgressReporter{}
	progressOut := out
	if a.Config.Quiet {
		progressReporter = orchestration.NullProgressReporter{}
		progressOut = io.Discard
	}

	var results []orchestration.RunResult
	if len(units) > 0 {
		res := orchestration.ExecuteFanOut(ctx, rt.orch, requests[0], units, progressReporter, progressOut, a.fanOutOptions(rt)...)
		results = []orchestration.RunResult{res}
	} else {
		results = orchestration.ExecuteCalculations(ctx, rt.orch, requests, progressReporter, progressOut)
	}

	outputCfg := cli.OutputConfig{
		OutputFile: a.Config.Output,
		Quiet:      a.Config.Quiet,
		Verbose:    a.Config.Verbose,
	}
	exitCode := a.analyzeResults(results, outputCfg, out)

	if err := cli.SaveResults(out, results, outputCfg); err != nil {
		fmt.Fprintf(a.ErrWriter, "Error saving results: %v\n", err)
		if exitCode == apperrors.ExitSuccess {
			exitCode = apperrors.ExitErrorGeneric
		}
	}
	return exitCode
}

// analyzeResults prints the results. Quiet mode prints one line per
// calculation and no summary.
func (a *Application) analyzeResults(results []orchestration.RunResult, outputCfg cli.OutputConfig, out io.Writer) int {
	presenter := cli.CLIResultPresenter{}
	if !outputCfg.Quiet {
		return orchestration.AnalyzeResults(results, outputCfg.Verbose, presenter, presenter, out)
	}

	var firstErr error
	for _, res := range results {
		if err := res.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if res.StartErr != nil {
				fmt.Fprintln(out, err)
				continue
			}
		}
		cli.DisplayQuietResult(out, res.Status)
	}
	return presenter.HandleError(firstErr, 0, io.Discard)
}

// request builds the calculation described by the flags.
func (a *Application) request() calc.Request {
	cfg := a.Config
	req := calc.Request{
		CalcID:       cfg.CalcID,
		CalcType:     calc.Household,
		TargetType:   calc.TargetType(cfg.Target),
		CountryID:    cfg.Country,
		PolicyIDs:    calc.PolicyIDs{Baseline: cfg.Baseline, Reform: cfg.Reform},
		PopulationID: cfg.Population,
		Region:       cfg.Region,
		ReportID:     cfg.ReportID,
		Year:         cfg.Year,
	}
	if cfg.Mode != config.ModeHousehold {
		req.CalcType = calc.SocietyWide
		if req.PopulationID == "" {
			req.PopulationID = cfg.Country
		}
	}
	if req.CalcID == "" {
		req.CalcID = uuid.NewString()
	}
	return req
}

// requests returns the calculations of a one-shot run. A report target with
// simulations listed in the config file runs every simulation of the report.
func (a *Application) requests() []calc.Request {
	base := a.request()
	report, ok := a.Config.Reports[base.ReportID]
	if base.TargetType != calc.TargetSimulation || base.ReportID == "" || !ok || a.Config.CalcID != "" {
		return []calc.Request{base}
	}
	out := make([]calc.Request, len(report.Simulations))
	for i, id := range report.Simulations {
		req := base
		req.CalcID = id
		if req.Year == "" {
			req.Year = report.Year
		}
		out[i] = req
	}
	return out
}

// units returns the fan-out units: the configured list, else the US states.
func (a *Application) units() []string {
	if len(a.Config.Units) > 0 {
		return a.Config.Units
	}
	return backend.USStateRegions()
}

func (a *Application) fanOutOptions(rt *services) []orchestration.FanOutOption {
	return []orchestration.FanOutOption{
		orchestration.WithFanOutInterval(a.Config.PollInterval),
		orchestration.WithMaxPollAttempts(a.Config.MaxPollAttempts),
		orchestration.WithConcurrency(a.Config.Concurrency),
		orchestration.WithFanOutLogger(logging.Component(rt.logger, "fanout")),
		orchestration.WithFanOutMetrics(rt.metrics),
	}
}
