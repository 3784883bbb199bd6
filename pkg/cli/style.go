package cli

import "github.com/charmbracelet/lipgloss"

// Theme defines the terminal color scheme.
type Theme struct {
	Primary lipgloss.Color // accent, model output
	User    lipgloss.Color
	Dim     lipgloss.Color // help and status text
	Error   lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	User:    lipgloss.Color("#58a6ff"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Model   lipgloss.Style
	User    lipgloss.Style
	Tool    lipgloss.Style
	Success lipgloss.Style
	Info    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Model:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:    lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Tool:    lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
		Success: lipgloss.NewStyle().Foreground(t.Primary),
		Info:    lipgloss.NewStyle().Foreground(t.Dim),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#e3b341")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

var styles = NewStyles(DefaultTheme)

// SetTheme replaces the theme used by the Print helpers.
func SetTheme(t Theme) {
	styles = NewStyles(t)
}
