package tui

import "github.com/charmbracelet/bubbles/key"

// KeyBindings defines all keyboard shortcuts for the dashboard.
type KeyBindings struct {
	Quit            key.Binding
	NextProject     key.Binding
	ToggleWorkQueue key.Binding
	Launch          key.Binding
	Reset           key.Binding
	Refresh         key.Binding
	Help            key.Binding
}

// DefaultKeyBindings returns the default key bindings.
func DefaultKeyBindings() KeyBindings {
	return KeyBindings{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		NextProject: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "next project"),
		),
		ToggleWorkQueue: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "toggle work queue"),
		),
		Launch: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "launch"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyBindings) ShortHelp() []key.Binding {
	return []key.Binding{k.NextProject, k.Launch, k.Reset, k.ToggleWorkQueue, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyBindings) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextProject, k.Refresh},
		{k.Launch, k.Reset},
		{k.ToggleWorkQueue, k.Help, k.Quit},
	}
}
