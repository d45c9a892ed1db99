package cli

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the transcript colors.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Dim       lipgloss.Color
	Error     lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	User:      lipgloss.Color("#58a6ff"),
	Assistant: lipgloss.Color("#00ff9f"),
	Dim:       lipgloss.Color("#6e7681"),
	Error:     lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	User      lipgloss.Style
	Assistant lipgloss.Style
	Live      lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		User:      lipgloss.NewStyle().Bold(true).Foreground(t.User),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Assistant),
		Live:      lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
		Status:    lipgloss.NewStyle().Foreground(t.Dim),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// MessageLine renders one transcript entry:
//
//	15:04:05 You  merhaba
func (s Styles) MessageLine(user bool, at time.Time, text string) string {
	label := s.Assistant.Render("iShe")
	if user {
		label = s.User.Render("You ")
	}
	return s.Status.Render(at.Format("15:04:05")) + " " + label + " " + text
}

// LiveLine renders an in-progress transcript, truncated to width.
func (s Styles) LiveLine(user bool, text string, width int) string {
	prefix := "… "
	if user {
		prefix = "🎤 "
	}
	if width > 1 && lipgloss.Width(prefix+text) > width {
		text = truncateString(text, width-lipgloss.Width(prefix)-1) + "…"
	}
	return s.Live.Render(prefix + text)
}

// StatusLine renders "[state] mode" with optional progress percent.
func (s Styles) StatusLine(state, mode string, progress float64) string {
	line := "[" + state + "] " + mode
	if progress > 0 && progress < 100 {
		const cells = 10
		n := int(progress / 100 * cells)
		line += " " + strings.Repeat("█", n) + strings.Repeat("░", cells-n)
	}
	return s.Status.Render(line)
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
