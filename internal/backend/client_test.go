package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFetchHousehold(t *testing.T) {
	t.Parallel()
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok","result":{"people":{"you":{"age":{"2025":40}}}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	raw, err := c.FetchHousehold(context.Background(), "us", "hh-1", "2")
	if err != nil {
		t.Fatalf("FetchHousehold: %v", err)
	}
	if p, _ := gotPath.Load().(string); p != "/us/household/hh-1/policy/2" {
		t.Errorf("unexpected path %q", p)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded["people"] == nil {
		t.Errorf("result not passed through: %s", raw)
	}
}

func TestFetchHouseholdErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		code    int
		body    string
		wantSub string
	}{
		{"api error status", http.StatusOK, `{"status":"error","message":"bad household"}`, "bad household"},
		{"missing result", http.StatusOK, `{"status":"ok"}`, "no result"},
		{"http 500", http.StatusInternalServerError, `boom`, "backend returned 500: boom"},
		{"malformed json", http.StatusOK, `{`, "decode household"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).FetchHousehold(context.Background(), "us", "hh", "1")
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("expected error containing %q, got %v", tt.wantSub, err)
			}
		})
	}
}

func TestFetchSocietyWide(t *testing.T) {
	t.Parallel()
	var gotURL atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL.Store(r.URL.String())
		_, _ = io.WriteString(w, `{"status":"computing","queue_position":4,"average_time":90}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).FetchSocietyWide(context.Background(), SocietyWideParams{
		CountryID:  "us",
		BaselineID: "2",
		Region:     "state/ca",
		TimePeriod: "2025",
	})
	if err != nil {
		t.Fatalf("FetchSocietyWide: %v", err)
	}
	if u, _ := gotURL.Load().(string); u != "/us/economy/2/over/2?region=state%2Fca&time_period=2025" {
		t.Errorf("unexpected url %q", u)
	}
	if resp.Status != StatusComputing || resp.QueuePosition == nil || *resp.QueuePosition != 4 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.AverageTime == nil || *resp.AverageTime != 90 {
		t.Errorf("average_time not decoded: %+v", resp.AverageTime)
	}
}

func TestFetchSocietyWideErrorMessageFallback(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"error","message":"simulation crashed"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).FetchSocietyWide(context.Background(), SocietyWideParams{CountryID: "uk", BaselineID: "1", ReformID: "7"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != "simulation crashed" {
		t.Errorf("expected message fallback, got %q", resp.Error)
	}
}

func TestResultWrites(t *testing.T) {
	t.Parallel()
	type captured struct {
		method, path string
		body         map[string]any
	}
	var (
		mu    sync.Mutex
		calls []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		calls = append(calls, captured{r.Method, r.URL.Path, body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()
	if err := c.MarkReportCompleted(ctx, "us", "rep-1", "2025", json.RawMessage(`{"budget":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateSimulationOutput(ctx, "us", "sim-1", json.RawMessage(`{"h":2}`)); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].method != http.MethodPatch || calls[0].path != "/us/report" {
		t.Errorf("report write went to %s %s", calls[0].method, calls[0].path)
	}
	if calls[0].body["status"] != "complete" || calls[0].body["year"] != "2025" || calls[0].body["id"] != "rep-1" {
		t.Errorf("report body unexpected: %v", calls[0].body)
	}
	if calls[1].path != "/us/simulation" || calls[1].body["id"] != "sim-1" {
		t.Errorf("simulation write unexpected: %+v", calls[1])
	}
}

func TestHTTPErrorTemporary(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).UpdateSimulationOutput(context.Background(), "us", "s", nil)
	var se *HTTPError
	if !errors.As(err, &se) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if !se.Temporary() {
		t.Error("503 should be temporary")
	}
	if (&HTTPError{Code: http.StatusNotFound}).Temporary() {
		t.Error("404 should not be temporary")
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"status":"ok","result":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(0.001, 1))
	if _, err := c.FetchHousehold(context.Background(), "us", "a", "1"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchHousehold(ctx, "us", "b", "1"); err == nil {
		t.Error("second call should fail once the burst is spent and ctx is done")
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 request to reach the server, got %d", hits.Load())
	}
}

func TestUSStateRegions(t *testing.T) {
	t.Parallel()
	regions := USStateRegions()
	if len(regions) != 51 {
		t.Fatalf("expected 51 regions, got %d", len(regions))
	}
	seen := map[string]bool{}
	for _, r := range regions {
		if !strings.HasPrefix(r, "state/") || seen[r] {
			t.Errorf("bad or duplicate region %q", r)
		}
		seen[r] = true
	}
	if StateFromRegion("state/dc") != "DC" || StateFromRegion("us") != "" {
		t.Error("StateFromRegion mismatch")
	}
}
