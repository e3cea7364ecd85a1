package calc

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle position of a calculation.
type State string

const (
	StatePending   State = "pending"
	StateComputing State = "computing"
	StateComplete  State = "complete"
	StateError     State = "error"
)

// Terminal reports whether no further automatic transition can follow.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Active reports whether the calculation is still running.
func (s State) Active() bool {
	return s == StatePending || s == StateComputing
}

// rank orders states along pending → computing → terminal.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateComputing:
		return 1
	case StateComplete, StateError:
		return 2
	}
	return -1
}

// Error codes written into Status.Error.
const (
	CodeHouseholdFailed   = "HOUSEHOLD_CALC_FAILED"
	CodeSocietyWideFailed = "SOCIETY_WIDE_CALC_FAILED"
	CodePollFailed        = "POLL_FAILED"
	CodeUnknownStatus     = "UNKNOWN_STATUS"
)

// Error describes why a calculation failed. Retryable is the signal the UI
// uses to offer (or hide) a retry affordance.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status is the observable record of one calculation, keyed by CalcID.
type Status struct {
	State                  State         `json:"status"`
	Progress               *float64      `json:"progress,omitempty"`
	QueuePosition          *int          `json:"queuePosition,omitempty"`
	Message                string        `json:"message,omitempty"`
	EstimatedTimeRemaining time.Duration `json:"-"` // seconds on the wire
	Result                 *Result       `json:"result,omitempty"`
	Error                  *Error        `json:"error,omitempty"`
	Metadata               Metadata      `json:"metadata"`
}

type statusAlias Status

type statusJSON struct {
	statusAlias
	EstimatedTimeRemaining float64 `json:"estimatedTimeRemaining,omitempty"`
}

// MarshalJSON encodes the status with estimatedTimeRemaining in seconds.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{
		statusAlias:            statusAlias(s),
		EstimatedTimeRemaining: s.EstimatedTimeRemaining.Seconds(),
	})
}

// UnmarshalJSON decodes a status whose estimatedTimeRemaining is in seconds.
func (s *Status) UnmarshalJSON(data []byte) error {
	var w statusJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Status(w.statusAlias)
	s.EstimatedTimeRemaining = time.Duration(w.EstimatedTimeRemaining * float64(time.Second))
	return nil
}

// ProgressValue returns the progress or 0 when none was reported.
func (s Status) ProgressValue() float64 {
	if s.Progress == nil {
		return 0
	}
	return *s.Progress
}

// Float returns a pointer to v, clamped to [0, 100].
func Float(v float64) *float64 {
	switch {
	case v < 0:
		v = 0
	case v > 100:
		v = 100
	}
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Pending builds the initial status of a run.
func Pending(meta Metadata, message string) Status {
	return Status{State: StatePending, Progress: Float(0), Message: message, Metadata: meta}
}

// Failed builds a terminal error status.
func Failed(meta Metadata, code, message string, retryable bool) Status {
	return Status{
		State:    StateError,
		Error:    &Error{Code: code, Message: message, Retryable: retryable},
		Metadata: meta,
	}
}

// Completed builds a terminal success status carrying res.
func Completed(meta Metadata, res *Result) Status {
	return Status{State: StateComplete, Progress: Float(100), Result: res, Metadata: meta}
}

// CanTransition reports whether next may follow prev inside one run. A run may
// stay in the same non-terminal state (progress updates), move forward, or
// finish; nothing follows a terminal state. Restarts open a new run and are
// not checked here.
func CanTransition(prev, next State) bool {
	if prev.Terminal() {
		return false
	}
	pr, nr := prev.rank(), next.rank()
	if pr < 0 || nr < 0 {
		return false
	}
	return nr >= pr
}
