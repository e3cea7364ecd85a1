package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// FooterModel renders the key hints and the run state.
type FooterModel struct {
	keymap KeyMap
	paused bool
	done   bool
	failed bool
	width  int
}

// NewFooterModel creates a new footer.
func NewFooterModel(keymap KeyMap) FooterModel {
	return FooterModel{keymap: keymap}
}

func (f *FooterModel) SetPaused(p bool) { f.paused = p }
func (f *FooterModel) SetDone(d bool)   { f.done = d }
func (f *FooterModel) SetError(e bool)  { f.failed = e }
func (f *FooterModel) SetWidth(w int)   { f.width = w }

// View renders the footer.
func (f FooterModel) View() string {
	hints := make([]string, 0, len(f.keymap.ShortHelp()))
	for _, b := range f.keymap.ShortHelp() {
		h := b.Help()
		hints = append(hints, footerKeyStyle.Render(h.Key)+" "+footerDescStyle.Render(h.Desc))
	}
	left := " " + strings.Join(hints, "  ")

	var state string
	switch {
	case f.failed:
		state = failedStyle.Render("Error")
	case f.done:
		state = doneStyle.Render("Done")
	case f.paused:
		state = pausedStyle.Render("Paused")
	default:
		state = runningStyle.Render("Running")
	}
	gap := f.width - lipgloss.Width(left) - lipgloss.Width(state) - 1
	return left + strings.Repeat(" ", max(gap, 1)) + state
}
