package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agbru/policycalc/internal/calc"
	apperrors "github.com/agbru/policycalc/internal/errors"
	"github.com/agbru/policycalc/internal/orchestration"
)

func testRequests() []calc.Request {
	return []calc.Request{
		{CalcID: "sim-1", CalcType: calc.Household, TargetType: calc.TargetSimulation, CountryID: "us", PolicyIDs: calc.PolicyIDs{Baseline: "2"}, PopulationID: "hh-1"},
		{CalcID: "sim-2", CalcType: calc.SocietyWide, TargetType: calc.TargetSimulation, CountryID: "us", PolicyIDs: calc.PolicyIDs{Baseline: "2", Reform: "88"}, PopulationID: "us", Region: "state/ca"},
	}
}

func sizedModel(t *testing.T) Model {
	t.Helper()
	m := NewModel(context.Background(), Session{Requests: testRequests(), Version: "v1.0.0"})
	t.Cleanup(m.cancel)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 30})
	return next.(Model)
}

func TestModelAppliesAggregate(t *testing.T) {
	t.Parallel()
	m := sizedModel(t)

	agg := orchestration.Aggregate([]calc.Status{
		calc.Completed(calc.Metadata{CalcID: "sim-1"}, calc.NewHouseholdResult(json.RawMessage(`{"net_income":1}`))),
		{State: calc.StateComputing, Progress: calc.Float(40), QueuePosition: calc.Int(3)},
	})
	next, _ := m.Update(AggregateMsg{Status: agg})
	m = next.(Model)

	if got := m.calculations.rows[1].status.State; got != calc.StateComputing {
		t.Errorf("row 2 state = %s, want computing", got)
	}
	view := m.View()
	for _, want := range []string{"Policy Calculator v1.0.0", "1/2 complete", "sim-1", "sim-2", "queue 3", "net_income"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestModelPauseIgnoresUpdates(t *testing.T) {
	t.Parallel()
	m := sizedModel(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = next.(Model)
	if !m.paused {
		t.Fatal("space should pause the dashboard")
	}

	agg := orchestration.Aggregate([]calc.Status{{State: calc.StateComputing}, {State: calc.StateComputing}})
	next, _ = m.Update(AggregateMsg{Status: agg})
	m = next.(Model)
	if m.calculations.rows[0].status.State != calc.StatePending {
		t.Error("paused dashboard applied an update")
	}
}

func TestModelSelection(t *testing.T) {
	t.Parallel()
	m := sizedModel(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if r, ok := m.calculations.Selected(); !ok || r.req.CalcID != "sim-2" {
		t.Errorf("selected = %v, want sim-2", r.req.CalcID)
	}
	if !strings.Contains(m.View(), "Region: state/ca") {
		t.Error("detail panel should describe the selected calculation")
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if r, _ := m.calculations.Selected(); r.req.CalcID != "sim-2" {
		t.Error("selection moved past the last row")
	}
}

func TestModelRunComplete(t *testing.T) {
	t.Parallel()
	m := sizedModel(t)

	next, _ := m.Update(RunCompleteMsg{ExitCode: apperrors.ExitErrorCalculation, Generation: 99})
	if next.(Model).done {
		t.Fatal("stale completion was applied")
	}
	next, _ = m.Update(ErrorMsg{Err: errors.New("boom")})
	next, _ = next.(Model).Update(RunCompleteMsg{ExitCode: apperrors.ExitErrorCalculation, Generation: 0})
	m = next.(Model)
	if !m.done || m.exitCode != apperrors.ExitErrorCalculation {
		t.Errorf("done=%v exitCode=%d", m.done, m.exitCode)
	}
	if !strings.Contains(m.View(), "Error") {
		t.Error("footer should show the error state")
	}
}

func TestModelRetryStartsNewGeneration(t *testing.T) {
	t.Parallel()
	m := sizedModel(t)
	oldCtx := m.ctx

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = next.(Model)
	t.Cleanup(m.cancel)
	if m.generation != 1 || cmd == nil {
		t.Fatalf("generation = %d, cmd = %v", m.generation, cmd)
	}
	if oldCtx.Err() == nil {
		t.Error("retry should cancel the previous run")
	}
	next, _ = m.Update(ContextCancelledMsg{Err: context.Canceled, Generation: 0})
	if next.(Model).done {
		t.Error("cancellation of the previous generation ended the session")
	}
}

func TestModelQuitBeforeDone(t *testing.T) {
	t.Parallel()
	m := sizedModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if got := next.(Model).exitCode; got != apperrors.ExitErrorCanceled {
		t.Errorf("exitCode = %d, want %d", got, apperrors.ExitErrorCanceled)
	}
}

func TestModelViewBeforeSize(t *testing.T) {
	t.Parallel()
	m := NewModel(context.Background(), Session{})
	defer m.cancel()
	if m.View() != "Initializing..." {
		t.Errorf("View = %q", m.View())
	}
}

func TestStartRunCmdWithoutOrchestrator(t *testing.T) {
	t.Parallel()
	msg := startRunCmd(&programRef{}, context.Background(), Session{}, 3)()
	done, ok := msg.(RunCompleteMsg)
	if !ok || done.Generation != 3 || done.ExitCode != apperrors.ExitSuccess {
		t.Errorf("msg = %#v", msg)
	}
}

func TestPreviewPayload(t *testing.T) {
	t.Parallel()
	lines := previewPayload(json.RawMessage(`{"a":1,"b":2,"c":3}`), 3)
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if !strings.Contains(lines[2], "more lines") {
		t.Errorf("last line = %q", lines[2])
	}
}
