// Package polling runs at most one fixed-interval polling loop per
// calculation. A loop re-polls the backend until the calculation is terminal,
// its writer reports the run is no longer current, or the loop is cancelled.
package polling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/metrics"
)

// Interval bounds.
const (
	DefaultInterval = time.Second
	MinInterval     = 100 * time.Millisecond
	MaxInterval     = time.Minute
)

// PollFunc fetches the current status of a calculation.
type PollFunc func(ctx context.Context) (calc.Status, error)

// WriteFunc records a polled status. It returns false when the loop should
// stop because the status was rejected or the run was superseded.
type WriteFunc func(st calc.Status) bool

// ClampInterval bounds d to [MinInterval, MaxInterval]; zero selects the
// default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	}
	return d
}

// Handle controls one scheduled loop.
type Handle struct {
	calcID string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// CalcID returns the calculation the loop polls.
func (h *Handle) CalcID() string { return h.calcID }

// Done is closed once the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the loop. An in-flight poll is not interrupted; its result is
// discarded.
func (h *Handle) Cancel() {
	h.once.Do(func() { close(h.stop) })
}

func (h *Handle) stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// Manager owns the active polling loops.
type Manager struct {
	base    context.Context
	cancel  context.CancelFunc
	logger  logging.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	loops map[string]*Handle
	wg    sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records loop activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager returns a manager whose polls run on a context derived from ctx.
// Cancelling ctx (or calling Close) aborts in-flight polls as well.
func NewManager(ctx context.Context, opts ...Option) *Manager {
	base, cancel := context.WithCancel(ctx)
	m := &Manager{
		base:   base,
		cancel: cancel,
		logger: logging.Nop(),
		loops:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schedule starts a loop for calcID. The first poll happens one interval
// after scheduling. When a loop for calcID is already active the call is a
// no-op: it returns the existing handle and false.
func (m *Manager) Schedule(calcID string, poll PollFunc, interval time.Duration, write WriteFunc) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.loops[calcID]; ok {
		return h, false
	}
	h := &Handle{calcID: calcID, stop: make(chan struct{}), done: make(chan struct{})}
	m.loops[calcID] = h
	m.wg.Add(1)
	m.metrics.PollStarted()
	go m.run(h, poll, ClampInterval(interval), write)
	return h, true
}

func (m *Manager) run(h *Handle, poll PollFunc, interval time.Duration, write WriteFunc) {
	defer func() {
		m.mu.Lock()
		if m.loops[h.calcID] == h {
			delete(m.loops, h.calcID)
		}
		m.mu.Unlock()
		m.metrics.PollStopped()
		close(h.done)
		m.wg.Done()
	}()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-m.base.Done():
			return
		case <-timer.C:
		}

		st, err := m.safePoll(poll)
		if h.stopped() {
			m.metrics.PollTick("discarded")
			return
		}
		if err != nil {
			if m.base.Err() != nil {
				return
			}
			m.metrics.PollTick("error")
			m.logger.Error("poll failed", err, logging.String("calc_id", h.calcID))
			write(calc.Status{
				State: calc.StateError,
				Error: &calc.Error{Code: calc.CodePollFailed, Message: err.Error(), Retryable: true},
			})
			return
		}
		m.metrics.PollTick(string(st.State))
		if !write(st) || st.State.Terminal() {
			return
		}
		timer.Reset(interval)
	}
}

// safePoll turns a panicking poll into an error so one bad response cannot
// take down the process.
func (m *Manager) safePoll(poll PollFunc) (st calc.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panicked: %v", r)
		}
	}()
	return poll(m.base)
}

// Cancel stops the loop for calcID, if any.
func (m *Manager) Cancel(calcID string) {
	m.mu.Lock()
	h, ok := m.loops[calcID]
	if ok {
		delete(m.loops, calcID)
	}
	m.mu.Unlock()
	if ok {
		h.Cancel()
	}
}

// Active reports whether a loop for calcID is running.
func (m *Manager) Active(calcID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loops[calcID]
	return ok
}

// Len returns the number of active loops.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

// Cleanup cancels every loop. The manager stays usable.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.loops))
	for id, h := range m.loops {
		handles = append(handles, h)
		delete(m.loops, id)
	}
	m.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// Close cancels every loop, aborts in-flight polls and waits for the loop
// goroutines to exit.
func (m *Manager) Close() {
	m.Cleanup()
	m.cancel()
	m.wg.Wait()
}
