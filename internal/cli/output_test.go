package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/orchestration"
)

func completeResult(id string, payload string) orchestration.RunResult {
	meta := calc.Metadata{CalcID: id, CalcType: calc.Household, TargetType: calc.TargetSimulation, Year: "2025"}
	return orchestration.RunResult{
		Request:  calc.Request{CalcID: id, CalcType: calc.Household, TargetType: calc.TargetSimulation},
		Status:   calc.Completed(meta, calc.NewHouseholdResult(json.RawMessage(payload))),
		Duration: 1500 * time.Millisecond,
	}
}

func TestWriteResultToFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	results := []orchestration.RunResult{
		completeResult("sim-1", `{"net_income": 100}`),
		{Request: calc.Request{CalcID: "sim-2"}, StartErr: errors.New("boom")},
	}

	testCases := []struct {
		name       string
		outputFile string
	}{
		{"flat file", filepath.Join(tmpDir, "results.json")},
		{"nested directory", filepath.Join(tmpDir, "nested", "dir", "results.json")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := WriteResultToFile(results, OutputConfig{OutputFile: tc.outputFile}); err != nil {
				t.Fatalf("WriteResultToFile: %v", err)
			}
			data, err := os.ReadFile(tc.outputFile)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			var doc savedFile
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if len(doc.Results) != 2 {
				t.Fatalf("results = %d, want 2", len(doc.Results))
			}
			if doc.Results[0].Status.State != calc.StateComplete || doc.Results[0].Error != "" {
				t.Errorf("first entry = %+v", doc.Results[0])
			}
			if doc.Results[1].Error != "boom" {
				t.Errorf("second entry error = %q, want boom", doc.Results[1].Error)
			}
		})
	}

	t.Run("no output file", func(t *testing.T) {
		t.Parallel()
		if err := WriteResultToFile(results, OutputConfig{}); err != nil {
			t.Errorf("WriteResultToFile without a file: %v", err)
		}
	})
}

func TestFormatPayload(t *testing.T) {
	t.Parallel()
	small := json.RawMessage(`{"a":1}`)
	if got, truncated := FormatPayload(small, false); truncated || !strings.Contains(got, "\"a\": 1") {
		t.Errorf("FormatPayload(small) = %q, %v", got, truncated)
	}

	large := json.RawMessage(`{"values":[` + strings.Repeat(`1,`, 600) + `1]}`)
	got, truncated := FormatPayload(large, false)
	if !truncated || !strings.Contains(got, "...") {
		t.Errorf("large payload was not truncated")
	}
	if full, truncated := FormatPayload(large, true); truncated || strings.Contains(full, "...") {
		t.Error("verbose payload was truncated")
	}
	if got, _ := FormatPayload(json.RawMessage("not json"), false); got != "not json" {
		t.Errorf("invalid JSON = %q", got)
	}
}

func TestFormatQuietResult(t *testing.T) {
	t.Parallel()
	if got := FormatQuietResult(completeResult("x", "{ \"a\" : 1 }").Status); got != `{"a":1}` {
		t.Errorf("FormatQuietResult = %q", got)
	}
	failed := calc.Failed(calc.Metadata{}, calc.CodePollFailed, "down", true)
	if got := FormatQuietResult(failed); got != calc.CodePollFailed {
		t.Errorf("FormatQuietResult(error) = %q", got)
	}
}

func TestDisplayResult(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	res := completeResult("sim-1", `{"net_income": 100}`)
	DisplayResult(res.Status, res.Duration, false, &buf)

	output := buf.String()
	for _, want := range []string{"simulation sim-1", "household", "Year: 2025", "Calculation time: 1.5s", "\"net_income\": 100"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q:\n%s", want, output)
		}
	}
}

func TestSaveResults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.json")
	var buf bytes.Buffer
	if err := SaveResults(&buf, []orchestration.RunResult{completeResult("a", "{}")}, OutputConfig{OutputFile: path}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Results saved to: "+path) {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	if err := SaveResults(&buf, nil, OutputConfig{OutputFile: path, Quiet: true}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("quiet save printed %q", buf.String())
	}
}
