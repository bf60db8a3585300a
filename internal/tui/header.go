package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/fbmon/internal/transport"
)

// Header displays the dashboard header with branding and connection info.
type Header struct {
	width int

	project   string
	projects  int
	connState transport.State
}

// NewHeader creates a new header component.
func NewHeader() Header {
	return Header{connState: transport.StateConnected}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetProject updates the active project and the number of known projects.
func (h *Header) SetProject(name string, known int) {
	h.project = name
	h.projects = known
}

// SetConnectionState updates the connection state display.
func (h *Header) SetConnectionState(state transport.State) {
	h.connState = state
}

// View renders the header.
func (h Header) View() string {
	brand := headerBrandStyle.Render("🧪 fbmon")

	var connStatus string
	switch h.connState {
	case transport.StateDisconnected, transport.StateClosed:
		connStatus = headerConnDisconnectedStyle.Render(" ● " + h.connState.String())
	case transport.StateConnecting:
		connStatus = headerConnConnectingStyle.Render(" ◌ connecting...")
	}

	name := h.project
	if name == "" {
		name = "no project"
	}
	if h.projects > 1 {
		name += " (p to switch)"
	}
	proj := headerProjectStyle.Render(name)

	spacerWidth := max(h.width-lipgloss.Width(brand)-lipgloss.Width(connStatus)-lipgloss.Width(proj), 0)
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	content := lipgloss.JoinHorizontal(lipgloss.Top, brand, connStatus, spacer, proj)
	return headerContainerStyle.Width(h.width).Render(content)
}
