package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/orchestration"
)

func TestTUIProgressReporter_DrainsChannel(t *testing.T) {
	t.Parallel()
	reporter := &TUIProgressReporter{ref: &programRef{}} // nil program: Send is a no-op

	ch := make(chan orchestration.AggregateStatus, 4)
	ch <- orchestration.AggregateStatus{State: calc.StatePending, Members: 2}
	ch <- orchestration.AggregateStatus{State: calc.StateComputing, Progress: 40, Members: 2}
	ch <- orchestration.AggregateStatus{State: calc.StateComplete, Progress: 100, Members: 2, Complete: 2}
	close(ch)

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		reporter.DisplayProgress(&wg, ch, 2, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DisplayProgress did not return after the channel closed")
	}
	wg.Wait()
	if len(ch) != 0 {
		t.Errorf("%d updates left in the channel", len(ch))
	}
}

func TestTUIProgressReporter_EmptyChannel(t *testing.T) {
	t.Parallel()
	reporter := &TUIProgressReporter{ref: &programRef{}}
	ch := make(chan orchestration.AggregateStatus)
	close(ch)

	var wg sync.WaitGroup
	wg.Add(1)
	go reporter.DisplayProgress(&wg, ch, 1, nil)
	wg.Wait()
}

func TestProgramRef_Send_Concurrent(t *testing.T) {
	t.Parallel()
	ref := &programRef{}

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref.Send(AggregateMsg{Status: orchestration.AggregateStatus{Progress: float64(i)}})
		}()
	}
	wg.Wait()
}

func TestTUIResultPresenter_HandleError(t *testing.T) {
	t.Parallel()
	presenter := &TUIResultPresenter{ref: &programRef{}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, apperrors.ExitSuccess},
		{"timeout", context.DeadlineExceeded, apperrors.ExitErrorTimeout},
		{"canceled", context.Canceled, apperrors.ExitErrorCanceled},
		{"calculation", apperrors.CalculationError{Code: calc.CodePollFailed, Retryable: true}, apperrors.ExitErrorCalculation},
		{"generic", errors.New("something failed"), apperrors.ExitErrorGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := presenter.HandleError(tt.err, time.Second, nil); got != tt.want {
				t.Errorf("HandleError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestTUIResultPresenter_NoPanicWithoutProgram(t *testing.T) {
	t.Parallel()
	presenter := &TUIResultPresenter{ref: &programRef{}}
	results := []orchestration.RunResult{{Request: calc.Request{CalcID: "sim-1"}, Duration: time.Second}}
	presenter.PresentSummary(results, nil)
	presenter.PresentResult(results[0], true, nil)
}
