package tui

import (
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/orchestration"
)

// programRef is a shared reference to the tea.Program.
// Because bubbletea copies the model on every Update, we need a pointer
// that survives copies so the bridge goroutines can send messages.
type programRef struct {
	mu      sync.RWMutex
	program *tea.Program
}

// SetProgram sets the tea.Program reference (thread-safe).
func (r *programRef) SetProgram(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// Send sends a message to the bubbletea program (thread-safe).
func (r *programRef) Send(msg tea.Msg) {
	r.mu.RLock()
	p := r.program
	r.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// TUIProgressReporter implements orchestration.ProgressReporter by
// forwarding aggregate statuses as bubbletea messages.
type TUIProgressReporter struct {
	ref *programRef
}

var _ orchestration.ProgressReporter = (*TUIProgressReporter)(nil)

// DisplayProgress drains updates and sends one AggregateMsg per value.
func (t *TUIProgressReporter) DisplayProgress(wg *sync.WaitGroup, updates <-chan orchestration.AggregateStatus, _ int, _ io.Writer) {
	defer wg.Done()
	for agg := range updates {
		t.ref.Send(AggregateMsg{Status: agg})
	}
	t.ref.Send(ProgressDoneMsg{})
}

// TUIResultPresenter implements orchestration.ResultPresenter and
// orchestration.ErrorHandler. Results go to the dashboard instead of stdout.
type TUIResultPresenter struct {
	ref *programRef
}

var (
	_ orchestration.ResultPresenter = (*TUIResultPresenter)(nil)
	_ orchestration.ErrorHandler    = (*TUIResultPresenter)(nil)
)

// PresentSummary sends the settled results to the dashboard.
func (t *TUIResultPresenter) PresentSummary(results []orchestration.RunResult, _ io.Writer) {
	t.ref.Send(ResultsMsg{Results: results})
}

// PresentResult is a no-op: the detail panel renders the selected result.
func (t *TUIResultPresenter) PresentResult(orchestration.RunResult, bool, io.Writer) {}

// HandleError sends an error message to the dashboard and returns the exit
// code.
func (t *TUIResultPresenter) HandleError(err error, duration time.Duration, _ io.Writer) int {
	t.ref.Send(ErrorMsg{Err: err, Duration: duration})
	return apperrors.HandleCalculationError(err, duration, io.Discard, nil)
}
