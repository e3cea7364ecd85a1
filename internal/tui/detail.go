package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agbru/policycalc/internal/format"
)

// renderDetail shows the selected calculation: its request, message or error,
// and the first lines of its result.
func renderDetail(r row, ok bool, width, height int) string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Details"))
	if ok {
		req, st := r.req, r.status
		fmt.Fprintf(&b, "\n %s %s  %s %s",
			labelStyle.Render("Policy:"), valueStyle.Render(req.PolicyIDs.Effective()),
			labelStyle.Render("Population:"), valueStyle.Render(req.PopulationID))
		if req.Region != "" {
			fmt.Fprintf(&b, "  %s %s", labelStyle.Render("Region:"), valueStyle.Render(req.Region))
		}
		if st.EstimatedTimeRemaining > 0 && st.State.Active() {
			fmt.Fprintf(&b, "\n %s %s", labelStyle.Render("Estimate:"), valueStyle.Render(format.FormatETA(st.EstimatedTimeRemaining)))
		}
		if st.Message != "" {
			fmt.Fprintf(&b, "\n %s", dimStyle.Render(st.Message))
		}
		if st.Error != nil {
			retry := ""
			if st.Error.Retryable {
				retry = " (press r to retry)"
			}
			fmt.Fprintf(&b, "\n %s", errorTextStyle.Render(st.Error.Code+": "+st.Error.Message+retry))
		}
		if st.Result != nil {
			for _, line := range previewPayload(st.Result.Payload(), max(height-6, 1)) {
				b.WriteString("\n " + line)
			}
		}
	}
	return panelStyle.Width(max(width-2, 0)).Height(max(height-2, 0)).Render(b.String())
}

// previewPayload returns at most n lines of the indented payload.
func previewPayload(raw json.RawMessage, n int) []string {
	var buf bytes.Buffer
	text := string(raw)
	if err := json.Indent(&buf, raw, "", "  "); err == nil {
		text = buf.String()
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = append(lines[:n-1], dimStyle.Render(fmt.Sprintf("… %d more lines", len(lines)-n+1)))
	}
	return lines
}
