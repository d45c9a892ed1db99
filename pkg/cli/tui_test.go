package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestStyles_Lines(t *testing.T) {
	s := NewStyles(DefaultTheme)
	at := time.Date(2025, 6, 3, 14, 5, 9, 0, time.UTC)

	if got := s.MessageLine(true, at, "merhaba"); !strings.Contains(got, "14:05:09") || !strings.Contains(got, "merhaba") {
		t.Errorf("MessageLine = %q", got)
	}

	live := s.LiveLine(false, strings.Repeat("ş", 100), 20)
	if w := lipgloss.Width(live); w > 20 {
		t.Errorf("LiveLine width = %d, want <= 20", w)
	}

	if got := s.StatusLine("active", "conversation", 50); !strings.Contains(got, "█████░░░░░") {
		t.Errorf("StatusLine = %q", got)
	}
	if got := s.StatusLine("idle", "conversation", 0); strings.Contains(got, "░") {
		t.Errorf("StatusLine without progress = %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("günaydın", 3); got != "gün" {
		t.Errorf("truncateString = %q, want %q", got, "gün")
	}
	if got := truncateString("abc", 0); got != "" {
		t.Errorf("truncateString(width 0) = %q", got)
	}
}
