package orchestration

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/metrics"
	"github.com/agbru/policycalc/internal/polling"
	"github.com/agbru/policycalc/internal/status"
)

var tracer = otel.Tracer("github.com/agbru/policycalc/internal/orchestration")

// ErrClosed is returned by StartCalculation after Close.
var ErrClosed = errors.New("orchestrator is closed")

// initialMessage is the message of the first status of every run.
const initialMessage = "Initializing calculation..."

// run is one attempt at a calculation. A retry creates a new run with a
// higher generation; writes from older runs are rejected.
type run struct {
	req    calc.Request
	gen    uint64
	key    status.Key
	meta   calc.Metadata
	handle *Handle
	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the writer goroutine.
	persisted bool

	// mu guards poll and finished. apply holds it across its store write, so
	// nothing is written for a run once finish has returned.
	mu       sync.Mutex
	poll     *polling.Handle
	finished bool
	once     sync.Once
}

// writeRequest carries one status write to the writer goroutine.
type writeRequest struct {
	run     *run
	status  calc.Status
	restart bool
	reply   chan writeResult
}

type writeResult struct {
	accepted bool
	persist  bool
	status   calc.Status
}

// Handle is the caller's view of a started calculation. Cancellation is owned
// by the caller: nothing else tears the run down before it settles.
type Handle struct {
	calcID string
	key    status.Key
	store  status.Store
	done   chan struct{}
	cancel func()
}

// CalcID returns the calculation id.
func (h *Handle) CalcID() string { return h.calcID }

// Done is closed when the run has settled or was cancelled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the run. Statuses already written stay in the store.
func (h *Handle) Cancel() { h.cancel() }

// Status returns the current stored status.
func (h *Handle) Status() (calc.Status, bool) { return h.store.Get(h.key) }

// Wait blocks until the run settles or ctx is done, then returns the stored
// status.
func (h *Handle) Wait(ctx context.Context) (calc.Status, error) {
	select {
	case <-h.done:
		st, _ := h.store.Get(h.key)
		return st, nil
	case <-ctx.Done():
		return calc.Status{}, ctx.Err()
	}
}

func settledHandle(req calc.Request, key status.Key, store status.Store) *Handle {
	h := &Handle{calcID: req.CalcID, key: key, store: store, done: make(chan struct{}), cancel: func() {}}
	close(h.done)
	return h
}

// Orchestrator starts calculations and owns their lifecycle.
type Orchestrator struct {
	store       status.Store
	household   backend.HouseholdFetcher
	societyWide backend.SocietyWideFetcher
	persister   ResultPersister
	polls       *polling.Manager
	interval    time.Duration
	logger      logging.Logger
	metrics     *metrics.Collector
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*run
	gen    uint64
	closed bool

	writes     chan writeRequest
	stop       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval sets the society-wide polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = polling.ClampInterval(d) }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records orchestration activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator and starts its writer goroutine. persister may be
// nil, in which case completed results are only cached.
func New(store status.Store, household backend.HouseholdFetcher, societyWide backend.SocietyWideFetcher, persister ResultPersister, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:       store,
		household:   household,
		societyWide: societyWide,
		persister:   persister,
		interval:    polling.DefaultInterval,
		logger:      logging.Nop(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		runs:        make(map[string]*run),
		writes:      make(chan writeRequest),
		stop:        make(chan struct{}),
		writerDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.polls = polling.NewManager(ctx, polling.WithLogger(o.logger), polling.WithMetrics(o.metrics))
	go o.writer()
	return o
}

// Store returns the status store the orchestrator writes to.
func (o *Orchestrator) Store() status.Store { return o.store }

// StartCalculation accepts req and drives it to completion in the background.
//
// The call is idempotent per CalcID: while a run is active the existing handle
// is returned without any backend call, and a calculation whose stored status
// is complete is not started again. A calculation whose stored status is error
// is retried as a fresh run. Validation errors are returned; every backend
// failure ends up in the stored status instead.
func (o *Orchestrator) StartCalculation(ctx context.Context, req calc.Request) (*Handle, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	strategy, err := o.strategyFor(req.CalcType)
	if err != nil {
		return nil, err
	}
	_, span := tracer.Start(ctx, "orchestration.StartCalculation", trace.WithAttributes(
		attribute.String("calc.id", req.CalcID),
		attribute.String("calc.type", string(req.CalcType)),
		attribute.String("calc.target", string(req.TargetType)),
	))
	defer span.End()

	r, restart, existing, err := o.register(req)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		span.SetAttributes(attribute.Bool("calc.duplicate", true))
		o.metrics.DuplicateStart()
		return existing, nil
	}
	o.metrics.CalculationStarted(string(req.CalcType))
	o.logger.Info("calculation started",
		logging.String("calc_id", req.CalcID),
		logging.String("calc_type", string(req.CalcType)),
		logging.Bool("retry", restart))

	if res := o.commit(r, calc.Pending(r.meta, initialMessage), restart); !res.accepted {
		o.finish(r)
		return r.handle, nil
	}
	go o.execute(r, strategy)
	return r.handle, nil
}

// register claims the calculation id. It returns either a new run or, for a
// duplicate start, the handle to hand back.
func (o *Orchestrator) register(req calc.Request) (r *run, restart bool, existing *Handle, err error) {
	key := status.KeyOf(req.TargetType, req.CalcID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, false, nil, ErrClosed
	}
	if active, ok := o.runs[req.CalcID]; ok {
		return nil, false, active.handle, nil
	}
	prev, had := o.store.Get(key)
	if had && prev.State == calc.StateComplete {
		return nil, false, settledHandle(req, key, o.store), nil
	}

	o.gen++
	runCtx, cancel := context.WithCancel(o.ctx)
	r = &run{
		req:    req,
		gen:    o.gen,
		key:    key,
		meta:   calc.MetadataFor(req, o.now()),
		ctx:    runCtx,
		cancel: cancel,
	}
	r.handle = &Handle{
		calcID: req.CalcID,
		key:    key,
		store:  o.store,
		done:   make(chan struct{}),
		cancel: func() { o.finish(r) },
	}
	o.runs[req.CalcID] = r
	return r, had, nil, nil
}

// execute performs the first backend call and, if needed, hands the run to the
// polling manager.
func (o *Orchestrator) execute(r *run, s Strategy) {
	ctx, span := tracer.Start(r.ctx, "orchestration."+s.Name(),
		trace.WithAttributes(attribute.String("calc.id", r.req.CalcID)))
	st := s.Fetch(ctx, r)
	span.End()

	if r.ctx.Err() != nil {
		o.finish(r)
		return
	}
	if !o.write(r, st) || st.State.Terminal() {
		o.finish(r)
		return
	}

	poll := s.Poll(r)
	if poll == nil {
		o.logger.Error("non-terminal status from a one-shot strategy", nil, logging.String("calc_id", r.req.CalcID))
		o.finish(r)
		return
	}
	h, started := o.polls.Schedule(r.req.CalcID, poll, o.interval, func(st calc.Status) bool {
		return o.write(r, st)
	})
	if !started {
		// A cancelled loop of an earlier run still owns the slot.
		o.polls.Cancel(r.req.CalcID)
		h, _ = o.polls.Schedule(r.req.CalcID, poll, o.interval, func(st calc.Status) bool {
			return o.write(r, st)
		})
	}
	r.mu.Lock()
	finished := r.finished
	if !finished {
		r.poll = h
	}
	r.mu.Unlock()
	if finished {
		h.Cancel()
		return
	}
	go func() {
		<-h.Done()
		o.finish(r)
	}()
}

// write commits st for r and persists the result when the writer asks for it.
// It reports whether the status was accepted.
func (o *Orchestrator) write(r *run, st calc.Status) bool {
	res := o.commit(r, st, false)
	if res.persist {
		o.persist(r, res.status)
	}
	return res.accepted
}

func (o *Orchestrator) persist(r *run, st calc.Status) {
	if err := o.persister.Persist(o.ctx, st, r.req.CountryID); err != nil {
		o.logger.Error("persist result", err,
			logging.String("calc_id", r.req.CalcID),
			logging.String("report_id", r.meta.ReportID))
		return
	}
	o.logger.Debug("result persisted", logging.String("calc_id", r.req.CalcID))
}

// commit sends a write to the writer goroutine and waits for its verdict.
func (o *Orchestrator) commit(r *run, st calc.Status, restart bool) writeResult {
	req := writeRequest{run: r, status: st, restart: restart, reply: make(chan writeResult, 1)}
	select {
	case o.writes <- req:
	case <-o.stop:
		return writeResult{}
	}
	select {
	case res := <-req.reply:
		return res
	case <-o.stop:
		return writeResult{}
	}
}

// writer is the only goroutine that writes calculation statuses, so writes
// for one calculation are totally ordered.
func (o *Orchestrator) writer() {
	defer close(o.writerDone)
	for {
		select {
		case req := <-o.writes:
			req.reply <- o.apply(req)
		case <-o.stop:
			return
		}
	}
}

func (o *Orchestrator) apply(req writeRequest) writeResult {
	r := req.run
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return writeResult{}
	}

	st := req.status
	st.Metadata = r.meta
	if prev, ok := o.store.Get(r.key); ok && !req.restart && prev.Metadata.StartedAt.Equal(r.meta.StartedAt) {
		if !calc.CanTransition(prev.State, st.State) {
			o.logger.Warn("rejected status transition",
				logging.String("calc_id", r.req.CalcID),
				logging.String("from", string(prev.State)),
				logging.String("to", string(st.State)))
			return writeResult{}
		}
		if prev.Progress != nil && st.State.Active() && (st.Progress == nil || *st.Progress < *prev.Progress) {
			st.Progress = calc.Float(*prev.Progress)
		}
	}

	o.store.Set(r.key, st)

	res := writeResult{accepted: true, status: st}
	if st.State.Terminal() {
		o.metrics.CalculationFinished(string(r.req.CalcType), string(st.State))
		o.logger.Info("calculation finished",
			logging.String("calc_id", r.req.CalcID),
			logging.String("state", string(st.State)))
	}
	if st.State == calc.StateComplete && r.meta.ReportID != "" && o.persister != nil && !r.persisted {
		r.persisted = true
		res.persist = true
	}
	return res
}

// finish releases the run: it leaves the registry, its poll loop stops and its
// handle resolves. Safe to call more than once.
func (o *Orchestrator) finish(r *run) {
	r.once.Do(func() {
		r.mu.Lock()
		r.finished = true
		poll := r.poll
		r.mu.Unlock()

		o.mu.Lock()
		if o.runs[r.req.CalcID] == r {
			delete(o.runs, r.req.CalcID)
		}
		o.mu.Unlock()

		r.cancel()
		if poll != nil {
			poll.Cancel()
		}
		close(r.handle.done)
	})
}

// IsRunning reports whether calcID has an active run.
func (o *Orchestrator) IsRunning(calcID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[calcID]
	return ok
}

// Running returns the ids of all active runs.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.runs))
	for id := range o.runs {
		ids = append(ids, id)
	}
	return ids
}

// Cleanup cancels the runs of the given ids, or every run when none is
// given. Unknown ids are ignored.
func (o *Orchestrator) Cleanup(calcIDs ...string) {
	o.mu.Lock()
	var targets []*run
	if len(calcIDs) == 0 {
		for _, r := range o.runs {
			targets = append(targets, r)
		}
	} else {
		for _, id := range calcIDs {
			if r, ok := o.runs[id]; ok {
				targets = append(targets, r)
			}
		}
	}
	o.mu.Unlock()
	for _, r := range targets {
		o.finish(r)
	}
}

// Close cancels every run, stops polling and the writer goroutine. Further
// starts fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()

		o.Cleanup()
		o.cancel()
		o.polls.Close()
		close(o.stop)
		<-o.writerDone
	})
}
