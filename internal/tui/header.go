package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/policycalc/internal/format"
)

// HeaderModel renders the top bar: title, country, elapsed time and counts.
type HeaderModel struct {
	startTime time.Time
	endTime   time.Time
	version   string
	country   string
	complete  int
	members   int
	width     int
}

// NewHeaderModel creates a new header.
func NewHeaderModel(version, country string) HeaderModel {
	return HeaderModel{startTime: time.Now(), version: version, country: country}
}

// SetDone freezes the elapsed timer at the current time.
func (h *HeaderModel) SetDone() {
	h.endTime = time.Now()
}

// Reset restarts the elapsed timer.
func (h *HeaderModel) Reset() {
	h.startTime = time.Now()
	h.endTime = time.Time{}
	h.complete = 0
}

// SetCounts records how many members of the session are complete.
func (h *HeaderModel) SetCounts(complete, members int) {
	h.complete, h.members = complete, members
}

// SetWidth updates the available width.
func (h *HeaderModel) SetWidth(w int) {
	h.width = w
}

// Elapsed returns the running or frozen duration of the session.
func (h HeaderModel) Elapsed() time.Duration {
	if !h.endTime.IsZero() {
		return h.endTime.Sub(h.startTime)
	}
	return time.Since(h.startTime)
}

// View renders the header.
func (h HeaderModel) View() string {
	titleText := "Policy Calculator"
	if h.version != "" && h.version != "dev" {
		titleText += " " + h.version
	}
	pipe := dimStyle.Render(" | ")
	left := titleStyle.Render(titleText)
	if h.country != "" {
		left += pipe + dimStyle.Render("country ") + valueStyle.Render(h.country)
	}
	left += pipe + elapsedStyle.Render("Elapsed: "+format.FormatExecutionDuration(h.Elapsed().Round(time.Second)))

	right := dimStyle.Render(fmt.Sprintf("%d/%d complete", h.complete, h.members))
	gap := h.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	return headerStyle.Width(h.width).Render(left + strings.Repeat(" ", max(gap, 1)) + right)
}
