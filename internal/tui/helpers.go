package tui

import (
	"fmt"
	"strings"
	"time"

	rtruncate "github.com/muesli/reflow/truncate"
)

// formatDuration formats a duration in a concise human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}

// truncate shortens s to width terminal cells, ending with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return rtruncate.StringWithTail(s, uint(width), "…")
}

// progressBar renders done/total as a bar of width cells.
func progressBar(done, total, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 {
		filled = min(done*width/total, width)
	}
	filled = max(filled, 0)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// panel renders a titled, bordered widget of the given outer width.
func panel(title, body string, width int) string {
	inner := max(width-4, 1)
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = truncate(l, inner)
	}
	content := widgetTitleStyle.Render(truncate(title, inner)) + "\n" + strings.Join(lines, "\n")
	return widgetBorderStyle.Width(max(width-2, 1)).Render(content)
}
