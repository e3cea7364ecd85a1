package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/ui"
)

// Dashboard styles, rebuilt by initTUIStyles whenever the ui palette changes.
var (
	panelStyle      lipgloss.Style
	panelTitleStyle lipgloss.Style
	headerStyle     lipgloss.Style
	titleStyle      lipgloss.Style
	elapsedStyle    lipgloss.Style
	dimStyle        lipgloss.Style
	labelStyle      lipgloss.Style
	valueStyle      lipgloss.Style
	selectedStyle   lipgloss.Style
	errorTextStyle  lipgloss.Style
	sparklineStyle  lipgloss.Style
	footerKeyStyle  lipgloss.Style
	footerDescStyle lipgloss.Style
	runningStyle    lipgloss.Style
	pausedStyle     lipgloss.Style
	doneStyle       lipgloss.Style
	failedStyle     lipgloss.Style

	stateStyles map[calc.State]lipgloss.Style
)

func init() {
	initTUIStyles()
}

// initTUIStyles rebuilds the styles from ui.GetCurrentTUITheme. Run calls it
// again once app.Run has applied -no-color.
func initTUIStyles() {
	t := ui.GetCurrentTUITheme()
	fg := func(c lipgloss.TerminalColor) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

	panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Foreground(t.Text)
	panelTitleStyle = fg(t.Accent).Bold(true)
	headerStyle = fg(t.Accent).Bold(true).Padding(0, 1)
	titleStyle = fg(t.Accent).Bold(true)
	elapsedStyle = fg(t.Accent)
	dimStyle = fg(t.Muted)
	labelStyle = fg(t.Muted)
	valueStyle = fg(t.Text).Bold(true)
	selectedStyle = fg(t.Accent).Bold(true)
	errorTextStyle = fg(t.Failed)
	sparklineStyle = fg(t.Computing)
	footerKeyStyle = fg(t.Accent).Bold(true)
	footerDescStyle = fg(t.Muted)

	runningStyle = fg(t.Computing).Bold(true)
	pausedStyle = fg(t.Warning).Bold(true)
	doneStyle = fg(t.Complete).Bold(true)
	failedStyle = fg(t.Failed).Bold(true)

	stateStyles = map[calc.State]lipgloss.Style{
		calc.StatePending:   fg(t.Pending),
		calc.StateComputing: fg(t.Computing),
		calc.StateComplete:  fg(t.Complete),
		calc.StateError:     fg(t.Failed),
	}
}

// stateStyle colors a calculation state. Unknown states render dimmed.
func stateStyle(s calc.State) lipgloss.Style {
	if st, ok := stateStyles[s]; ok {
		return st
	}
	return dimStyle
}
