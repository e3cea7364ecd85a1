package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/agbru/policycalc/internal/backend"
	"github.com/agbru/policycalc/internal/calc"
)

// behaviorBackend answers according to a behavior encoded in the population
// id, for household calls, or in the region, for society-wide calls.
type behaviorBackend struct {
	delay time.Duration
}

func (b behaviorBackend) FetchHousehold(ctx context.Context, _, behavior, _ string) (json.RawMessage, error) {
	switch behavior {
	case "slow":
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.delay):
		}
	case "error":
		return nil, fmt.Errorf("simulated error")
	}
	return json.RawMessage(`{"net_income":1}`), nil
}

func (b behaviorBackend) FetchSocietyWide(_ context.Context, p backend.SocietyWideParams) (backend.SocietyWideResponse, error) {
	switch p.Region {
	case "forever":
		return backend.SocietyWideResponse{Status: backend.StatusComputing}, nil
	case "error":
		return backend.SocietyWideResponse{Status: backend.StatusError}, nil
	}
	return backend.SocietyWideResponse{Status: backend.StatusOK, Result: json.RawMessage(`{}`)}, nil
}

// countingReporter drains the updates and remembers the last one.
type countingReporter struct {
	mu      sync.Mutex
	updates int
	last    AggregateStatus
}

func (r *countingReporter) DisplayProgress(wg *sync.WaitGroup, updates <-chan AggregateStatus, _ int, _ io.Writer) {
	defer wg.Done()
	for u := range updates {
		r.mu.Lock()
		r.updates++
		r.last = u
		r.mu.Unlock()
	}
}

func behaviorRequest(id, behavior string) calc.Request {
	req := householdRequest(id)
	req.PopulationID = behavior
	return req
}

// TestOrchestrationNoDeadlock_MixedBehaviors verifies that ExecuteCalculations
// completes without deadlocking under various backend behavior combinations.
func TestOrchestrationNoDeadlock_MixedBehaviors(t *testing.T) {
	testCases := []struct {
		name     string
		requests []calc.Request
	}{
		{
			name: "all_instant",
			requests: []calc.Request{
				behaviorRequest("c1", "instant"),
				behaviorRequest("c2", "instant"),
				behaviorRequest("c3", "instant"),
			},
		},
		{
			name: "mixed_instant_and_slow",
			requests: []calc.Request{
				behaviorRequest("fast", "instant"),
				behaviorRequest("slow", "slow"),
			},
		},
		{
			name: "mixed_with_errors",
			requests: []calc.Request{
				behaviorRequest("ok", "instant"),
				behaviorRequest("err", "error"),
			},
		},
		{
			name: "duplicate_ids",
			requests: []calc.Request{
				behaviorRequest("dup", "slow"),
				behaviorRequest("dup", "slow"),
				behaviorRequest("dup", "slow"),
			},
		},
		{
			name: "single_request",
			requests: []calc.Request{
				behaviorRequest("solo", "instant"),
			},
		},
		{
			name: "invalid_request",
			requests: []calc.Request{
				{CalcID: "bad"},
				behaviorRequest("good", "instant"),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := behaviorBackend{delay: 20 * time.Millisecond}
			o, _ := newTestOrchestrator(t, b, b, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			reporter := &countingReporter{}
			done := make(chan []RunResult)
			go func() {
				done <- ExecuteCalculations(ctx, o, tc.requests, reporter, io.Discard)
			}()

			select {
			case results := <-done:
				if len(results) != len(tc.requests) {
					t.Errorf("got %d results, want %d", len(results), len(tc.requests))
				}
				reporter.mu.Lock()
				defer reporter.mu.Unlock()
				if reporter.updates == 0 {
					t.Error("reporter received no update")
				}
			case <-time.After(10 * time.Second):
				t.Fatal("DEADLOCK: ExecuteCalculations did not complete within timeout")
			}
		})
	}
}

// TestOrchestrationNoDeadlock_ContextCancellation verifies that cancelling
// the context while society-wide calculations poll does not cause a deadlock.
func TestOrchestrationNoDeadlock_ContextCancellation(t *testing.T) {
	b := behaviorBackend{}
	o, _ := newTestOrchestrator(t, b, b, nil)
	ctx, cancel := context.WithCancel(context.Background())

	reqs := []calc.Request{economyRequest("slow1"), economyRequest("slow2")}
	for i := range reqs {
		reqs[i].Region = "forever"
	}

	done := make(chan []RunResult)
	go func() {
		done <- ExecuteCalculations(ctx, o, reqs, NullProgressReporter{}, io.Discard)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case results := <-done:
		for _, res := range results {
			if !errors.Is(res.Err(), context.Canceled) {
				t.Errorf("%s: err = %v, want context.Canceled", res.Request.CalcID, res.Err())
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("DEADLOCK after context cancellation")
	}
	if n := len(o.Running()); n != 0 {
		t.Errorf("%d runs still registered after cancellation", n)
	}
}

// TestOrchestrationNoDeadlock_CloseWhilePolling verifies that Close returns
// while poll loops and writes are in flight.
func TestOrchestrationNoDeadlock_CloseWhilePolling(t *testing.T) {
	b := behaviorBackend{}
	o, _ := newTestOrchestrator(t, b, b, nil)
	for i := 0; i < 20; i++ {
		req := economyRequest(fmt.Sprintf("r%d", i))
		req.Region = "forever"
		mustStart(t, o, req)
	}
	time.Sleep(250 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Close()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("DEADLOCK: Close did not return")
	}
}
