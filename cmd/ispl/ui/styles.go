// Package ui provides the visual styling shared by the ispl CLI and TUI.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status colors are shared by both themes.
var (
	colorDanger  = lipgloss.Color("#e5484d")
	colorOK      = lipgloss.Color("#30a46c")
	colorCaution = lipgloss.Color("#f5a524")
	colorNotice  = lipgloss.Color("#3e8ef7")
	colorOnFill  = lipgloss.Color("#ffffff")
)

// Theme is a color scheme.
type Theme struct {
	Name       string
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	IsDark     bool
}

// LightTheme suits terminals with a light background.
func LightTheme() Theme {
	return Theme{
		Name:       "light",
		Foreground: "#1b2434",
		Primary:    "#1f4e8c",
		Accent:     "#2a9d8f",
		Muted:      "#8a93a3",
	}
}

// DarkTheme is the default.
func DarkTheme() Theme {
	return Theme{
		Name:       "dark",
		Foreground: "#e6e9ef",
		Primary:    "#6ea8fe",
		Accent:     "#4fd1c5",
		Muted:      "#6b7385",
		IsDark:     true,
	}
}

// ThemeByName resolves a configured theme name. "auto" and unknown names
// fall back to DetectTheme.
func ThemeByName(name string) Theme {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dark":
		return DarkTheme()
	case "light":
		return LightTheme()
	}
	return DetectTheme()
}

// DetectTheme guesses from COLORFGBG ("fg;bg"); dark unless the background
// index looks light.
func DetectTheme() Theme {
	if os.Getenv("ISPL_LIGHT_MODE") == "1" {
		return LightTheme()
	}
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil && (bg == 7 || (bg >= 9 && bg <= 15)) {
			return LightTheme()
		}
	}
	return DarkTheme()
}

// Styles are the rendered components, derived from one Theme.
type Styles struct {
	Theme Theme

	Header lipgloss.Style
	Footer lipgloss.Style
	Title  lipgloss.Style
	Body   lipgloss.Style
	Muted  lipgloss.Style
	Bold   lipgloss.Style
	Badge  lipgloss.Style

	Tab       lipgloss.Style
	ActiveTab lipgloss.Style

	Prompt        lipgloss.Style
	UserInput     lipgloss.Style
	AgentResponse lipgloss.Style
	Selected      lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

// NewStyles builds the component styles for theme.
func NewStyles(theme Theme) Styles {
	pill := func(bg lipgloss.Color, hpad int) lipgloss.Style {
		return lipgloss.NewStyle().Background(bg).Foreground(colorOnFill).Bold(true).Padding(0, hpad)
	}
	accent := fg(theme.Accent).Bold(true)

	return Styles{
		Theme: theme,

		Header: pill(theme.Primary, 2),
		Footer: fg(theme.Muted).Padding(0, 2),
		Title:  fg(theme.Primary).Bold(true).MarginBottom(1),
		Body:   fg(theme.Foreground),
		Muted:  fg(theme.Muted),
		Bold:   fg(theme.Foreground).Bold(true),
		Badge:  pill(theme.Accent, 1),

		Tab:       fg(theme.Muted).Padding(0, 2),
		ActiveTab: accent.Underline(true).Padding(0, 2),

		Prompt:    accent,
		UserInput: fg(theme.Foreground).Bold(true),
		AgentResponse: fg(theme.Foreground).
			PaddingLeft(2).
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(theme.Accent),
		Selected: accent,

		Success: fg(colorOK).Bold(true),
		Error:   fg(colorDanger).Bold(true),
		Warning: fg(colorCaution).Bold(true),
		Info:    fg(colorNotice),
	}
}

// StatusStyle picks the style for a normalized workflow step status.
func (s Styles) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return s.Success
	case "error":
		return s.Error
	case "running":
		return s.Info
	}
	return s.Warning
}
