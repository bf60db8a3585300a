package tui

import (
	"github.com/charmbracelet/bubbles/help"
)

// HelpBar displays keyboard shortcuts at the bottom of the dashboard.
type HelpBar struct {
	width int
	keys  KeyBindings
	help  help.Model

	errorMsg string
}

// NewHelpBar creates a new help bar component.
func NewHelpBar(keys KeyBindings) HelpBar {
	return HelpBar{
		keys: keys,
		help: help.New(),
	}
}

// SetWidth updates the help bar width.
func (h *HelpBar) SetWidth(width int) {
	h.width = width
	h.help.Width = width
}

// ToggleFull switches between the short and the full key listing.
func (h *HelpBar) ToggleFull() {
	h.help.ShowAll = !h.help.ShowAll
}

// SetError sets the error message to display.
func (h *HelpBar) SetError(msg string) {
	h.errorMsg = msg
}

// ClearError clears the error message.
func (h *HelpBar) ClearError() {
	h.errorMsg = ""
}

// View renders the help bar. An error replaces the shortcuts until cleared.
func (h HelpBar) View() string {
	if h.errorMsg != "" {
		return errorBarStyle.Width(h.width).Render("Error: " + h.errorMsg)
	}
	return statusStyle.Width(h.width).Render(h.help.View(h.keys))
}
