package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// ThemeEnv selects the palette when colors are enabled: dark or light.
const ThemeEnv = "POLICYCALC_THEME"

// Theme holds the ANSI escape codes used by the line-oriented output.
type Theme struct {
	Name      string
	Primary   string // values, ids
	Secondary string // hints, truncated payloads
	Success   string
	Warning   string
	Error     string
	Info      string
	Bold      string
	Underline string
	Reset     string
}

// TUITheme is the dashboard palette. Pending, Computing, Complete and Failed
// color the calculation states.
type TUITheme struct {
	Text    lipgloss.TerminalColor
	Border  lipgloss.TerminalColor
	Accent  lipgloss.TerminalColor
	Muted   lipgloss.TerminalColor
	Warning lipgloss.TerminalColor

	Pending   lipgloss.TerminalColor
	Computing lipgloss.TerminalColor
	Complete  lipgloss.TerminalColor
	Failed    lipgloss.TerminalColor
}

var (
	DarkTheme = Theme{
		Name:      "dark",
		Primary:   "\033[38;5;44m",
		Secondary: "\033[38;5;245m",
		Success:   "\033[38;5;78m",
		Warning:   "\033[38;5;221m",
		Error:     "\033[38;5;203m",
		Info:      "\033[38;5;147m",
		Bold:      "\033[1m",
		Underline: "\033[4m",
		Reset:     "\033[0m",
	}

	LightTheme = Theme{
		Name:      "light",
		Primary:   "\033[38;5;25m",
		Secondary: "\033[38;5;242m",
		Success:   "\033[38;5;28m",
		Warning:   "\033[38;5;130m",
		Error:     "\033[38;5;160m",
		Info:      "\033[38;5;91m",
		Bold:      "\033[1m",
		Underline: "\033[4m",
		Reset:     "\033[0m",
	}

	// NoColorTheme is used with -no-color or NO_COLOR.
	NoColorTheme = Theme{Name: "none"}

	DarkTUITheme = TUITheme{
		Text:      lipgloss.Color("#D8DEE9"),
		Border:    lipgloss.Color("#3B7A8C"),
		Accent:    lipgloss.Color("#4FC1D1"),
		Muted:     lipgloss.Color("#6C7680"),
		Warning:   lipgloss.Color("#E5C07B"),
		Pending:   lipgloss.Color("#8A94A0"),
		Computing: lipgloss.Color("#61AFEF"),
		Complete:  lipgloss.Color("#98C379"),
		Failed:    lipgloss.Color("#E06C75"),
	}

	LightTUITheme = TUITheme{
		Text:      lipgloss.Color("#2E3440"),
		Border:    lipgloss.Color("#5E81AC"),
		Accent:    lipgloss.Color("#1F6F8B"),
		Muted:     lipgloss.Color("#7B8494"),
		Warning:   lipgloss.Color("#A86B00"),
		Pending:   lipgloss.Color("#6B7280"),
		Computing: lipgloss.Color("#2563EB"),
		Complete:  lipgloss.Color("#15803D"),
		Failed:    lipgloss.Color("#B91C1C"),
	}

	NoColorTUITheme = TUITheme{
		Text:      lipgloss.NoColor{},
		Border:    lipgloss.NoColor{},
		Accent:    lipgloss.NoColor{},
		Muted:     lipgloss.NoColor{},
		Warning:   lipgloss.NoColor{},
		Pending:   lipgloss.NoColor{},
		Computing: lipgloss.NoColor{},
		Complete:  lipgloss.NoColor{},
		Failed:    lipgloss.NoColor{},
	}

	currentTheme = DarkTheme
	themeMutex   sync.RWMutex
)

// GetCurrentTheme returns the active theme.
func GetCurrentTheme() Theme {
	themeMutex.RLock()
	defer themeMutex.RUnlock()
	return currentTheme
}

// GetCurrentTUITheme returns the dashboard palette matching the active theme.
func GetCurrentTUITheme() TUITheme {
	themeMutex.RLock()
	defer themeMutex.RUnlock()

	switch currentTheme.Name {
	case NoColorTheme.Name:
		return NoColorTUITheme
	case LightTheme.Name:
		return LightTUITheme
	}
	return DarkTUITheme
}

// SetCurrentTheme replaces the active theme. Tests use it to restore state.
func SetCurrentTheme(t Theme) {
	themeMutex.Lock()
	defer themeMutex.Unlock()
	currentTheme = t
}

// SetTheme activates a theme by name; unknown names select dark.
func SetTheme(name string) {
	SetCurrentTheme(themeByName(name))
}

func themeByName(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LightTheme.Name:
		return LightTheme
	case NoColorTheme.Name:
		return NoColorTheme
	}
	return DarkTheme
}

// InitTheme picks the theme of the process. Colors are off when noColor is
// set or NO_COLOR is present (https://no-color.org/); otherwise ThemeEnv
// chooses between dark and light.
func InitTheme(noColor bool) {
	if _, set := os.LookupEnv("NO_COLOR"); noColor || set {
		SetCurrentTheme(NoColorTheme)
		return
	}
	SetTheme(os.Getenv(ThemeEnv))
}
