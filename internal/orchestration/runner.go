package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/status"
)

// StartFunc starts one calculation and returns its handle.
type StartFunc func(ctx context.Context, req calc.Request) (*Handle, error)

// ExecuteCalculations starts every request on o, waits for all of them to
// settle and returns one RunResult per request, in request order.
//
// While the calculations run, the aggregate status of the batch is streamed
// to progressReporter. Failures never abort the other calculations; they are
// reported through RunResult.Err.
func ExecuteCalculations(ctx context.Context, o *Orchestrator, requests []calc.Request, progressReporter ProgressReporter, out io.Writer) []RunResult {
	return execute(ctx, o.store, o.StartCalculation, requests, progressReporter, out)
}

// ExecuteFanOut runs req once per unit through StartFanOut and waits for the
// combined run to settle.
func ExecuteFanOut(ctx context.Context, o *Orchestrator, req calc.Request, units []string, progressReporter ProgressReporter, out io.Writer, opts ...FanOutOption) RunResult {
	start := func(ctx context.Context, req calc.Request) (*Handle, error) {
		return o.StartFanOut(ctx, req, units, opts...)
	}
	return execute(ctx, o.store, start, []calc.Request{req}, progressReporter, out)[0]
}

func execute(ctx context.Context, store status.Store, start StartFunc, requests []calc.Request, progressReporter ProgressReporter, out io.Writer) []RunResult {
	results := make([]RunResult, len(requests))
	keys := make([]status.Key, len(requests))
	for i, req := range requests {
		req = req.Normalize()
		results[i].Request = req
		keys[i] = status.KeyOf(req.TargetType, req.CalcID)
	}

	agg := NewAggregator(store)
	watchCtx, stopWatch := context.WithCancel(ctx)
	updates := agg.Watch(watchCtx, keys)
	progress := make(chan AggregateStatus, 1)

	var displayWg sync.WaitGroup
	displayWg.Add(1)
	go progressReporter.DisplayProgress(&displayWg, progress, len(requests), out)

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for u := range updates {
			progress <- u
		}
	}()

	var g errgroup.Group
	for i := range requests {
		g.Go(func() error {
			started := time.Now()
			h, err := start(ctx, results[i].Request)
			if err != nil {
				results[i].StartErr = err
				results[i].Duration = time.Since(started)
				return nil
			}
			st, err := h.Wait(ctx)
			if err != nil {
				h.Cancel()
				if errors.Is(err, context.DeadlineExceeded) {
					err = apperrors.TimeoutError{Operation: results[i].Request.CalcID, Limit: time.Since(started).Round(time.Millisecond)}
				}
				results[i].StartErr = err
				st, _ = store.Get(keys[i])
			}
			results[i].Status = st
			results[i].Duration = time.Since(started)
			return nil
		})
	}
	_ = g.Wait()

	stopWatch()
	<-forwarded
	progress <- agg.Snapshot(keys)
	close(progress)
	displayWg.Wait()

	return results
}

// AnalyzeResults presents the outcome of a batch and returns the process exit
// code: success only when every calculation completed.
func AnalyzeResults(results []RunResult, verbose bool, presenter ResultPresenter, handler ErrorHandler, out io.Writer) int {
	presenter.PresentSummary(results, out)

	var (
		firstErr error
		failed   int
		longest  time.Duration
	)
	for _, res := range results {
		if res.Duration > longest {
			longest = res.Duration
		}
		if err := res.Err(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		presenter.PresentResult(res, verbose, out)
	}

	if failed == 0 {
		fmt.Fprintf(out, "\nGlobal Status: Success. %d calculation(s) complete.\n", len(results))
		return apperrors.ExitSuccess
	}
	fmt.Fprintf(out, "\nGlobal Status: Failure. %d of %d calculation(s) did not complete.\n", failed, len(results))
	return handler.HandleError(firstErr, longest, out)
}

// statusErr converts a settled status into an error. Complete yields nil.
func statusErr(st calc.Status) error {
	switch st.State {
	case calc.StateComplete:
		return nil
	case calc.StateError:
		if st.Error == nil {
			return apperrors.CalculationError{Cause: errors.New("calculation failed")}
		}
		return apperrors.CalculationError{
			Code:      st.Error.Code,
			Retryable: st.Error.Retryable,
			Cause:     errors.New(st.Error.Message),
		}
	case "":
		return errors.New("calculation has no status")
	}
	return fmt.Errorf("calculation did not finish (status %s)", st.State)
}
