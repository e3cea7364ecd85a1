package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/format"
	"github.com/agbru/policycalc/internal/orchestration"
)

const (
	// PayloadTruncationLimit is the payload size from which a result is
	// truncated in standard output.
	PayloadTruncationLimit = 600
	// PayloadDisplayEdge is the number of bytes kept at each end of a
	// truncated payload.
	PayloadDisplayEdge = 240
	// ProgressRefreshRate defines the refresh frequency of the spinner.
	ProgressRefreshRate = 200 * time.Millisecond
	// ProgressBarWidth defines the width in characters of the progress bar.
	ProgressBarWidth = 30
)

// Spinner is an interface that abstracts the behavior of a terminal spinner.
// This allows for the decoupling of the `DisplayProgress` function from a
// specific spinner implementation, facilitating easier testing and maintenance.
type Spinner interface {
	// Start begins the spinner animation.
	Start()
	// Stop halts the spinner animation.
	Stop()
	// UpdateSuffix sets the text that is displayed after the spinner.
	UpdateSuffix(suffix string)
}

// realSpinner adapts `spinner.Spinner` to the Spinner interface.
type realSpinner struct {
	s *spinner.Spinner
}

func (rs *realSpinner) Start() { rs.s.Start() }

func (rs *realSpinner) Stop() { rs.s.Stop() }

// UpdateSuffix sets the suffix under the spinner's own lock, since the
// animation goroutine reads it concurrently.
func (rs *realSpinner) UpdateSuffix(suffix string) {
	rs.s.Lock()
	rs.s.Suffix = suffix
	rs.s.Unlock()
}

var newSpinner = func(options ...spinner.Option) Spinner {
	s := spinner.New(spinner.CharSets[11], ProgressRefreshRate, options...)
	return &realSpinner{s}
}

// progressLine renders one aggregate update as the spinner suffix.
func progressLine(agg orchestration.AggregateStatus, eta time.Duration, numCalculations int) string {
	line := " " + format.FormatProgressBarWithETA(agg.Progress, eta, ProgressBarWidth)
	if numCalculations > 1 {
		line += fmt.Sprintf(" | %d/%d complete", agg.Complete, agg.Members)
	}
	switch {
	case agg.QueuePosition != nil && agg.State != calc.StateComplete:
		line += fmt.Sprintf(" | queue position %d", *agg.QueuePosition)
	case agg.Message != "":
		line += " | " + agg.Message
	}
	return line
}

// DisplayProgress shows a spinner with the aggregate progress of the running
// calculations until updates is closed. When the backend reports an estimate
// it is preferred over the locally measured rate.
func DisplayProgress(wg *sync.WaitGroup, updates <-chan orchestration.AggregateStatus, numCalculations int, out io.Writer) {
	defer wg.Done()
	if numCalculations <= 0 {
		for range updates {
		}
		return
	}

	s := newSpinner(spinner.WithWriter(out))
	estimator := format.NewProgressWithETA()
	s.Start()
	defer s.Stop()

	for agg := range updates {
		_, eta := estimator.Update(agg.Progress)
		if backendETA := longestEstimate(agg.Statuses); backendETA > 0 {
			eta = backendETA
		}
		s.UpdateSuffix(progressLine(agg, eta, numCalculations))
	}
}

func longestEstimate(statuses []calc.Status) time.Duration {
	var longest time.Duration
	for _, st := range statuses {
		if st.State.Active() && st.EstimatedTimeRemaining > longest {
			longest = st.EstimatedTimeRemaining
		}
	}
	return longest
}
