package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/agbru/policycalc/internal/calc"
)

// row is one calculation of the session.
type row struct {
	req    calc.Request
	status calc.Status
}

// CalculationsModel lists the calculations of the session with a progress
// bar each. One row is selected at a time.
type CalculationsModel struct {
	rows     []row
	selected int
	offset   int
	bar      progress.Model
	width    int
	height   int
}

// NewCalculationsModel creates the list with every request pending.
func NewCalculationsModel(requests []calc.Request) CalculationsModel {
	rows := make([]row, len(requests))
	for i, r := range requests {
		rows[i] = row{req: r, status: calc.Status{State: calc.StatePending}}
	}
	return CalculationsModel{
		rows: rows,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// SetSize updates dimensions.
func (m *CalculationsModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.bar.Width = max(w/4, 10)
	m.scroll()
}

// Apply copies the member statuses of an aggregate into the rows. Statuses
// follow the order of the requests.
func (m *CalculationsModel) Apply(statuses []calc.Status) {
	for i := range min(len(statuses), len(m.rows)) {
		m.rows[i].status = statuses[i]
	}
}

// Reset puts every row back to pending.
func (m *CalculationsModel) Reset() {
	for i := range m.rows {
		m.rows[i].status = calc.Status{State: calc.StatePending}
	}
}

// MoveUp selects the previous row.
func (m *CalculationsModel) MoveUp() {
	if m.selected > 0 {
		m.selected--
	}
	m.scroll()
}

// MoveDown selects the next row.
func (m *CalculationsModel) MoveDown() {
	if m.selected < len(m.rows)-1 {
		m.selected++
	}
	m.scroll()
}

// Selected returns the selected row.
func (m CalculationsModel) Selected() (row, bool) {
	if len(m.rows) == 0 {
		return row{}, false
	}
	return m.rows[m.selected], true
}

// visibleRows is the number of rows that fit inside the borders and title.
func (m CalculationsModel) visibleRows() int {
	return max(m.height-3, 1)
}

func (m *CalculationsModel) scroll() {
	n := m.visibleRows()
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+n {
		m.offset = m.selected - n + 1
	}
}

// View renders the list.
func (m CalculationsModel) View() string {
	idWidth := len("Calculation")
	for _, r := range m.rows {
		idWidth = max(idWidth, len(r.req.CalcID))
	}

	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Calculations"))
	end := min(m.offset+m.visibleRows(), len(m.rows))
	for i := m.offset; i < end; i++ {
		b.WriteString("\n")
		b.WriteString(m.renderRow(i, idWidth))
	}
	return panelStyle.Width(max(m.width-2, 0)).Height(max(m.height-2, 0)).Render(b.String())
}

func (m CalculationsModel) renderRow(i, idWidth int) string {
	r := m.rows[i]
	marker, id := "  ", fmt.Sprintf("%-*s", idWidth, r.req.CalcID)
	if i == m.selected {
		marker, id = selectedStyle.Render("► "), selectedStyle.Render(id)
	}
	state := stateStyle(r.status.State).Render(fmt.Sprintf("%-9s", r.status.State))
	line := fmt.Sprintf("%s%s  %-11s %s %s %5.1f%%", marker, id, r.req.CalcType, state,
		m.bar.ViewAs(r.status.ProgressValue()/100), r.status.ProgressValue())
	switch {
	case r.status.QueuePosition != nil:
		line += dimStyle.Render(fmt.Sprintf("  queue %d", *r.status.QueuePosition))
	case r.status.Error != nil:
		line += errorTextStyle.Render("  " + r.status.Error.Code)
	}
	return line
}
