package orchestration

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/agbru/policycalc/internal/calc"
)

// ResultPersister writes a completed result to durable storage. The
// orchestrator calls it at most once per run.
type ResultPersister interface {
	Persist(ctx context.Context, st calc.Status, countryID string) error
}

// RunResult is the outcome of one calculation driven by ExecuteCalculations.
type RunResult struct {
	// Request is the normalized request that was started.
	Request calc.Request
	// Status is the last status observed for the calculation.
	Status calc.Status
	// Duration is the wall time from start until the run settled.
	Duration time.Duration
	// StartErr is set when the calculation could not be started or waited
	// for (validation failure, cancellation).
	StartErr error
}

// Err returns StartErr, or an error describing a status that is not
// complete, or nil.
func (r RunResult) Err() error {
	if r.StartErr != nil {
		return r.StartErr
	}
	return statusErr(r.Status)
}

// ProgressReporter displays aggregate progress while calculations run.
// This interface decouples the orchestration layer from the presentation
// layer: the orchestrator only produces AggregateStatus values.
type ProgressReporter interface {
	// DisplayProgress consumes updates until the channel is closed and then
	// calls wg.Done.
	DisplayProgress(wg *sync.WaitGroup, updates <-chan AggregateStatus, numCalculations int, out io.Writer)
}

// ProgressReporterFunc is a function adapter that implements ProgressReporter.
type ProgressReporterFunc func(wg *sync.WaitGroup, updates <-chan AggregateStatus, numCalculations int, out io.Writer)

// DisplayProgress calls the underlying function.
func (f ProgressReporterFunc) DisplayProgress(wg *sync.WaitGroup, updates <-chan AggregateStatus, numCalculations int, out io.Writer) {
	f(wg, updates, numCalculations, out)
}

// NullProgressReporter drains the updates without displaying anything.
// Useful for quiet mode or testing.
type NullProgressReporter struct{}

// DisplayProgress drains the channel without output.
func (NullProgressReporter) DisplayProgress(wg *sync.WaitGroup, updates <-chan AggregateStatus, _ int, _ io.Writer) {
	defer wg.Done()
	for range updates {
	}
}

// ResultPresenter renders finished calculations.
type ResultPresenter interface {
	// PresentSummary displays one line per calculation.
	PresentSummary(results []RunResult, out io.Writer)
	// PresentResult displays the result payload of one calculation.
	PresentResult(result RunResult, verbose bool, out io.Writer)
}

// ErrorHandler maps an error to an exit code, printing it as needed.
type ErrorHandler interface {
	HandleError(err error, duration time.Duration, out io.Writer) int
}
