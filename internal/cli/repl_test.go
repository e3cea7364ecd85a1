package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/briandowns/spinner"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/orchestration"
	"github.com/agbru/policycalc/internal/polling"
	"github.com/agbru/policycalc/internal/status"
)

var replHousehold = backend.HouseholdFunc(func(_ context.Context, _, population, _ string) (json.RawMessage, error) {
	if population == "broken" {
		return nil, errors.New("backend unavailable")
	}
	return json.RawMessage(`{"household_net_income":51234}`), nil
})

var replEconomy = backend.SocietyWideFunc(func(_ context.Context, p backend.SocietyWideParams) (backend.SocietyWideResponse, error) {
	return backend.SocietyWideResponse{
		Status: backend.StatusOK,
		Result: json.RawMessage(`{"region":"` + p.Region + `"}`),
	}, nil
})

// newTestREPL returns a session with a silent spinner and a fast orchestrator.
func newTestREPL(t *testing.T, input string) (*REPL, *bytes.Buffer, *orchestration.Orchestrator) {
	t.Helper()
	original := newSpinner
	newSpinner = func(...spinner.Option) Spinner { return &MockSpinner{} }
	t.Cleanup(func() { newSpinner = original })

	orch := orchestration.New(status.NewMemoryStore(), replHousehold, replEconomy, nil,
		orchestration.WithPollInterval(polling.MinInterval))
	t.Cleanup(orch.Close)

	r := NewREPL(orch, REPLConfig{
		Template: calc.Request{CountryID: "us", PolicyIDs: calc.PolicyIDs{Baseline: "2"}, Year: "2025"},
		Timeout:  5 * time.Second,
		Units:    []string{"state/ca", "state/ny"},
	})
	var out bytes.Buffer
	r.SetInput(strings.NewReader(input))
	r.SetOutput(&out)
	return r, &out, orch
}

func runREPL(t *testing.T, r *REPL) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("REPL did not exit")
	}
}

func TestREPLSession(t *testing.T) {
	r, out, _ := newTestREPL(t, "household hh-1\nlist\nexit\n")
	runREPL(t, r)

	output := out.String()
	for _, want := range []string{
		"Interactive Mode",
		"simulation calc-1",
		"household_net_income",
		"calc-1",
		"0 running.",
		"Goodbye!",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q:\n%s", want, output)
		}
	}
}

func TestREPLEconomyAndFanOut(t *testing.T) {
	r, out, _ := newTestREPL(t, "economy state/tx\nfanout\nquit\n")
	runREPL(t, r)

	output := out.String()
	if !strings.Contains(output, "Region: state/tx") {
		t.Errorf("society-wide result missing:\n%s", output)
	}
	if !strings.Contains(output, "simulation calc-2") || !strings.Contains(output, "state/ny") {
		t.Errorf("fan-out result missing:\n%s", output)
	}
}

func TestREPLFailedCalculation(t *testing.T) {
	r, out, _ := newTestREPL(t, "household broken\n")
	runREPL(t, r)

	if !strings.Contains(out.String(), calc.CodeHouseholdFailed) {
		t.Errorf("output should report %s:\n%s", calc.CodeHouseholdFailed, out.String())
	}
}

func TestREPLCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"policy", "policy 2 88", "reform 88"},
		{"year", "year 2030", "Year set to 2030."},
		{"config", "config", "Country:   us"},
		{"help", "help", "Available commands:"},
		{"unknown", "frobnicate", "Unknown command: frobnicate"},
		{"household usage", "household", "Usage: household <population>"},
		{"status unknown", "status nope", "No status for nope."},
		{"start usage", "start household", "Usage: start"},
		{"empty list", "list", "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out, _ := newTestREPL(t, "")
			if !r.processCommand(context.Background(), tt.input) {
				t.Fatal("command ended the session")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestREPLPolicyAppliesToRequests(t *testing.T) {
	r, _, _ := newTestREPL(t, "")
	r.processCommand(context.Background(), "policy 2 88")
	r.processCommand(context.Background(), "year 2030")

	req := r.request(calc.SocietyWide, "x", "state/ca")
	if req.PolicyIDs.Reform != "88" || req.Year != "2030" {
		t.Errorf("request = %+v", req)
	}
	if req.PopulationID != "us" || req.Region != "state/ca" {
		t.Errorf("society-wide request should default population to the country: %+v", req)
	}
}

func TestREPLStartInBackground(t *testing.T) {
	r, out, orch := newTestREPL(t, "")
	ctx := context.Background()
	r.processCommand(ctx, "start household bg-1 hh-9")
	if !strings.Contains(out.String(), "Started bg-1 in the background.") {
		t.Fatalf("output = %q", out.String())
	}

	key := status.KeyOf(calc.TargetSimulation, "bg-1")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if st, ok := orch.Store().Get(key); ok && st.State == calc.StateComplete {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background calculation never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	out.Reset()
	r.processCommand(ctx, "status bg-1")
	if !strings.Contains(out.String(), "bg-1") || !strings.Contains(out.String(), "complete 100%") {
		t.Errorf("status output = %q", out.String())
	}
	out.Reset()
	r.processCommand(ctx, "cancel bg-1")
	if !strings.Contains(out.String(), "Stopped bg-1.") {
		t.Errorf("cancel output = %q", out.String())
	}
}

func TestREPLContextCanceled(t *testing.T) {
	r, _, _ := newTestREPL(t, "help\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("REPL ignored the canceled context")
	}
}
