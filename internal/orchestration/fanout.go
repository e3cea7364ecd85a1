package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/metrics"
)

// Fan-out defaults: one poll per second for at most five minutes per unit.
const (
	DefaultFanOutInterval  = time.Second
	DefaultMaxPollAttempts = 300
)

// UnitFetcher requests or re-polls the society-wide calculation of one unit.
type UnitFetcher func(ctx context.Context, unit string) (backend.SocietyWideResponse, error)

// FanOutOption configures a FanOut.
type FanOutOption func(*FanOut)

// WithFanOutInterval sets the wait between two polls of a computing unit.
func WithFanOutInterval(d time.Duration) FanOutOption {
	return func(f *FanOut) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithMaxPollAttempts bounds the polls per unit.
func WithMaxPollAttempts(n int) FanOutOption {
	return func(f *FanOut) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithConcurrency limits how many units are in flight at once. Zero means no
// limit.
func WithConcurrency(n int) FanOutOption {
	return func(f *FanOut) { f.limit = n }
}

// WithFanOutLogger sets the logger.
func WithFanOutLogger(l logging.Logger) FanOutOption {
	return func(f *FanOut) { f.logger = l }
}

// WithFanOutMetrics records unit outcomes on c.
func WithFanOutMetrics(c *metrics.Collector) FanOutOption {
	return func(f *FanOut) { f.metrics = c }
}

// FanOut runs one society-wide calculation per unit (e.g. per state) and
// tracks them as a whole. A failing unit never stops the others; it only
// shrinks the merged result.
type FanOut struct {
	ctx         context.Context
	units       []string
	fetch       UnitFetcher
	interval    time.Duration
	maxAttempts int
	limit       int
	logger      logging.Logger
	metrics     *metrics.Collector

	mu      sync.Mutex
	state   calc.FanOutState
	started bool
	updates chan calc.FanOutState
	done    chan struct{}
}

// NewFanOut prepares a fan-out over units. Fetching starts with StartFetch,
// except for a single unit which starts right away. Cancelling ctx stops every
// unit; units still running are left unsettled, so neither count moves.
func NewFanOut(ctx context.Context, units []string, fetch UnitFetcher, opts ...FanOutOption) *FanOut {
	units = uniqueUnits(units)
	f := &FanOut{
		ctx:         ctx,
		units:       units,
		fetch:       fetch,
		interval:    DefaultFanOutInterval,
		maxAttempts: DefaultMaxPollAttempts,
		logger:      logging.Nop(),
		state:       calc.NewFanOutState(len(units)),
		updates:     make(chan calc.FanOutState, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if len(f.units) == 1 {
		f.StartFetch()
	}
	return f
}

func uniqueUnits(units []string) []string {
	seen := make(map[string]struct{}, len(units))
	out := make([]string, 0, len(units))
	for _, u := range units {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Units returns the units in their fixed order.
func (f *FanOut) Units() []string {
	return append([]string(nil), f.units...)
}

// StartFetch launches every unit. It reports false when fetching had already
// started.
func (f *FanOut) StartFetch() bool {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return false
	}
	f.started = true
	f.mu.Unlock()

	go f.run()
	return true
}

// Started reports whether StartFetch has run.
func (f *FanOut) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FanOut) run() {
	defer func() {
		f.mu.Lock()
		close(f.updates)
		f.mu.Unlock()
		close(f.done)
	}()

	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for _, unit := range f.units {
		g.Go(func() error {
			f.pollUnit(unit)
			return nil
		})
	}
	_ = g.Wait()
}

func (f *FanOut) pollUnit(unit string) {
	for attempt := 1; ; attempt++ {
		if f.ctx.Err() != nil {
			f.abandon(unit)
			return
		}
		resp, err := f.fetch(f.ctx, unit)
		if err != nil {
			if f.ctx.Err() != nil {
				f.abandon(unit)
				return
			}
			f.fail(unit, err.Error())
			return
		}
		switch resp.Status {
		case backend.StatusOK:
			f.succeed(unit, calc.SocietyWideResult{Region: unit, Output: resp.Result})
			return
		case backend.StatusError:
			msg := resp.Error
			if msg == "" {
				msg = "calculation failed"
			}
			f.fail(unit, msg)
			return
		case backend.StatusComputing:
		default:
			f.fail(unit, fmt.Sprintf("unexpected backend status %q", resp.Status))
			return
		}

		if attempt >= f.maxAttempts {
			f.fail(unit, fmt.Sprintf("still computing after %d polls", attempt))
			return
		}
		select {
		case <-f.ctx.Done():
		case <-time.After(f.interval):
		}
	}
}

func (f *FanOut) succeed(unit string, res calc.SocietyWideResult) {
	f.mu.Lock()
	f.state.Responses[unit] = res
	f.state.CompletedCount++
	f.publishLocked()
	f.mu.Unlock()
	f.metrics.FanOutUnit("complete")
}

func (f *FanOut) fail(unit, msg string) {
	f.mu.Lock()
	f.state.Errors[unit] = msg
	f.state.ErrorCount++
	f.publishLocked()
	f.mu.Unlock()
	f.metrics.FanOutUnit("error")
	f.logger.Warn("fan-out unit failed", logging.String("unit", unit), logging.String("error", msg))
}

// abandon drops a unit stopped by cancellation without recording an outcome.
func (f *FanOut) abandon(unit string) {
	f.logger.Debug("fan-out unit cancelled", logging.String("unit", unit))
}

// publishLocked replaces any unread update with the current state.
func (f *FanOut) publishLocked() {
	snap := f.state.Clone()
	select {
	case <-f.updates:
	default:
	}
	f.updates <- snap
}

// State returns a snapshot of the current state.
func (f *FanOut) State() calc.FanOutState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

// Updates delivers the latest state after each unit settles. Only the newest
// unread value is kept. The channel is closed once every unit has settled or
// stopped on cancellation.
func (f *FanOut) Updates() <-chan calc.FanOutState { return f.updates }

// Done is closed once every unit has settled or stopped on cancellation.
func (f *FanOut) Done() <-chan struct{} { return f.done }

// Wait blocks until every unit has settled or ctx is done.
func (f *FanOut) Wait(ctx context.Context) (calc.FanOutState, error) {
	if len(f.units) == 0 {
		return f.State(), nil
	}
	select {
	case <-f.done:
		return f.State(), nil
	case <-ctx.Done():
		return f.State(), ctx.Err()
	}
}

// Merged returns the successful unit results in unit order. It is rebuilt
// from the current state on every call.
func (f *FanOut) Merged() []calc.SocietyWideResult {
	st := f.State()
	out := make([]calc.SocietyWideResult, 0, len(st.Responses))
	for _, unit := range f.units {
		if res, ok := st.Responses[unit]; ok {
			out = append(out, res)
		}
	}
	return out
}
