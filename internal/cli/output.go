// # Naming Conventions
//
// Functions in this package follow consistent naming patterns based on their behavior:
//
//   - Display* functions write formatted output to an [io.Writer].
//     They handle presentation logic and colorization.
//     Examples: [DisplayResult], [DisplayQuietResult], [DisplayProgress].
//
//   - Format* functions return a formatted string without performing I/O.
//     Examples: [FormatPayload], [FormatQuietResult].
//
//   - Write* functions write data to files on the filesystem.
//     Examples: [WriteResultToFile], [SaveResults].

package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/format"
	"github.com/agbru/policycalc/internal/orchestration"
	"github.com/agbru/policycalc/internal/ui"
)

// OutputConfig holds configuration for result output.
type OutputConfig struct {
	// OutputFile is the path to save the results (empty for no file output).
	OutputFile string
	// Quiet mode prints only the result payloads.
	Quiet bool
	// Verbose shows the full payloads.
	Verbose bool
}

// savedResult is one entry of the file written by WriteResultToFile.
type savedResult struct {
	Request  calc.Request `json:"request"`
	Status   calc.Status  `json:"status"`
	Duration string       `json:"duration"`
	Error    string       `json:"error,omitempty"`
}

type savedFile struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Results     []savedResult `json:"results"`
}

// WriteResultToFile writes the results as indented JSON, creating parent
// directories as needed.
func WriteResultToFile(results []orchestration.RunResult, config OutputConfig) error {
	if config.OutputFile == "" {
		return nil
	}

	dir := filepath.Dir(config.OutputFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	doc := savedFile{GeneratedAt: time.Now().UTC(), Results: make([]savedResult, 0, len(results))}
	for _, r := range results {
		entry := savedResult{Request: r.Request, Status: r.Status, Duration: r.Duration.String()}
		if err := r.Err(); err != nil {
			entry.Error = err.Error()
		}
		doc.Results = append(doc.Results, entry)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(config.OutputFile, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// FormatPayload indents raw JSON and, unless verbose, truncates it around its
// middle. Invalid JSON is kept as is. The flag reports a truncation.
func FormatPayload(raw json.RawMessage, verbose bool) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var buf bytes.Buffer
	s := string(raw)
	if err := json.Indent(&buf, raw, "", "  "); err == nil {
		s = buf.String()
	}
	if verbose || len(s) <= PayloadTruncationLimit {
		return s, false
	}
	return s[:PayloadDisplayEdge] + "\n  ...\n" + s[len(s)-PayloadDisplayEdge:], true
}

// FormatQuietResult returns the compact payload of a finished status, or its
// error code.
func FormatQuietResult(st calc.Status) string {
	if st.Error != nil {
		return st.Error.Code
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, st.Result.Payload()); err != nil {
		return string(st.Result.Payload())
	}
	return buf.String()
}

// DisplayQuietResult prints FormatQuietResult on one line.
func DisplayQuietResult(out io.Writer, st calc.Status) {
	fmt.Fprintln(out, FormatQuietResult(st))
}

// DisplayResult prints the details of one finished calculation.
func DisplayResult(st calc.Status, duration time.Duration, verbose bool, out io.Writer) {
	meta := st.Metadata
	fmt.Fprintf(out, "\n%s--- %s %s ---%s\n", ui.ColorBold(), meta.TargetType, meta.CalcID, ui.ColorReset())
	fmt.Fprintf(out, "Type: %s%s%s", ui.ColorCyan(), meta.CalcType, ui.ColorReset())
	if meta.Year != "" {
		fmt.Fprintf(out, "  Year: %s", meta.Year)
	}
	if meta.ReportID != "" && meta.ReportID != meta.CalcID {
		fmt.Fprintf(out, "  Report: %s", meta.ReportID)
	}
	fmt.Fprintf(out, "\nCalculation time: %s%s%s\n", ui.ColorYellow(), format.FormatExecutionDuration(duration), ui.ColorReset())

	if st.Result == nil {
		return
	}
	if sw := st.Result.SocietyWide; sw != nil && sw.Region != "" {
		fmt.Fprintf(out, "Region: %s\n", sw.Region)
	}
	payload, truncated := FormatPayload(st.Result.Payload(), verbose)
	fmt.Fprintf(out, "Result (%d bytes):\n%s\n", len(st.Result.Payload()), payload)
	if truncated {
		fmt.Fprintf(out, "%s(truncated) Tip: use -v to print the full result.%s\n", ui.ColorGrey(), ui.ColorReset())
	}
}

// SaveResults writes the results to the configured file, if any, and reports
// where they went.
func SaveResults(out io.Writer, results []orchestration.RunResult, config OutputConfig) error {
	if config.OutputFile == "" {
		return nil
	}
	if err := WriteResultToFile(results, config); err != nil {
		return err
	}
	if !config.Quiet {
		fmt.Fprintf(out, "\n%s✓ Results saved to: %s%s%s\n",
			ui.ColorGreen(), ui.ColorCyan(), config.OutputFile, ui.ColorReset())
	}
	return nil
}
