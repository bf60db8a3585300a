package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "0s"},
		{"seconds", 45 * time.Second, "45s"},
		{"one minute", time.Minute, "1m"},
		{"59 minutes", 59 * time.Minute, "59m"},
		{"one hour", time.Hour, "1h0m"},
		{"hours and minutes", 2*time.Hour + 30*time.Minute, "2h30m"},
		{"one day", 24 * time.Hour, "1d0h"},
		{"days and hours", 60 * time.Hour, "2d12h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name              string
		done, total, size int
		want              string
	}{
		{"empty", 0, 10, 4, "░░░░"},
		{"half", 5, 10, 4, "██░░"},
		{"full", 10, 10, 4, "████"},
		{"overflow", 20, 10, 4, "████"},
		{"no total", 3, 0, 4, "░░░░"},
		{"negative", -1, 10, 4, "░░░░"},
		{"zero width", 1, 2, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressBar(tt.done, tt.total, tt.size); got != tt.want {
				t.Errorf("progressBar(%d, %d, %d) = %q, want %q", tt.done, tt.total, tt.size, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	got := truncate("a very long target name", 8)
	if lipgloss.Width(got) > 8 {
		t.Errorf("truncate width = %d, want <= 8 (%q)", lipgloss.Width(got), got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncate(%q) missing ellipsis", got)
	}
	if got := truncate("anything", 0); got != "" {
		t.Errorf("truncate(width 0) = %q, want empty", got)
	}
}

func TestPanel_FitsWidth(t *testing.T) {
	out := panel("Title", "line one\n"+strings.Repeat("x", 200), 40)
	for _, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > 40 {
			t.Errorf("panel line width = %d, want <= 40: %q", w, line)
		}
	}
	if !strings.Contains(out, "Title") {
		t.Error("panel output missing title")
	}
}
