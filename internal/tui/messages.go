package tui

import (
	"time"

	"github.com/agbru/policycalc/internal/metrics"
	"github.com/agbru/policycalc/internal/orchestration"
)

// TickMsg drives the periodic refresh.
type TickMsg time.Time

// RuntimeMsg carries a runtime sample for the resources panel.
type RuntimeMsg metrics.RuntimeSnapshot

// SystemMsg carries a host CPU and memory sample.
type SystemMsg metrics.SystemSnapshot

// AggregateMsg carries the combined status of the session. Statuses follow
// the order of the session requests.
type AggregateMsg struct {
	Status orchestration.AggregateStatus
}

// ProgressDoneMsg signals that the progress stream of a run was closed.
type ProgressDoneMsg struct{}

// ResultsMsg carries the settled results of a run.
type ResultsMsg struct {
	Results []orchestration.RunResult
}

// ErrorMsg reports the first failure of a run.
type ErrorMsg struct {
	Err      error
	Duration time.Duration
}

// RunCompleteMsg signals that a run settled with the given exit code.
type RunCompleteMsg struct {
	ExitCode   int
	Generation uint64
}

// ContextCancelledMsg signals that the run context was canceled.
type ContextCancelledMsg struct {
	Err        error
	Generation uint64
}
