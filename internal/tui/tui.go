// Package tui provides the Bubbletea-based dashboard for fbmon.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/transport"
)

const (
	requestTimeout = 10 * time.Second
	errorTimeout   = 5 * time.Second
)

// Model is the main Bubbletea model for the dashboard.
type Model struct {
	// Window dimensions
	width  int
	height int

	ready bool

	client api.Client
	post   func(tea.Msg)

	keys    KeyBindings
	header  Header
	helpBar HelpBar
	spinner spinner.Model

	status    *StatusWidget
	queue     *WorkQueueWidget
	optimizer *OptimizerWidget

	projects  []api.ProjectInfo
	connState transport.State
}

// NewWithClient creates a dashboard model. Client callbacks are delivered
// to the program through post, which must not block.
func NewWithClient(client api.Client, post func(tea.Msg)) Model {
	keys := DefaultKeyBindings()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = widgetTitleStyle
	return Model{
		client:    client,
		post:      post,
		keys:      keys,
		header:    NewHeader(),
		helpBar:   NewHelpBar(keys),
		spinner:   sp,
		status:    NewStatusWidget(),
		queue:     NewWorkQueueWidget(),
		optimizer: NewOptimizerWidget(),
		connState: client.State(),
	}
}

func (m Model) widgets() []Widget {
	return []Widget{m.status, m.optimizer, m.queue}
}

// Init implements tea.Model. It mounts the status and optimizer widgets;
// the work queue widget is mounted on demand.
func (m Model) Init() tea.Cmd {
	slog.Debug("tui.Init: mounting widgets")
	m.status.Mount(m.client, m.post)
	m.optimizer.Mount(m.client, m.post)
	return tea.Batch(m.spinner.Tick, m.fetchProjects())
}

// Close unmounts every widget, releasing their subscriptions.
func (m Model) Close() {
	for _, w := range m.widgets() {
		w.Unmount()
	}
}

func (m Model) fetchProjects() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		projects, err := api.Await(ctx, api.Always(client.ListProjects))
		return projectListMsg{Projects: projects, Err: err}
	}
}

func clearErrorAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearErrorMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.header.SetWidth(msg.Width)
		m.helpBar.SetWidth(msg.Width)
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case projectListMsg:
		if msg.Err != nil {
			return m.showError(msg.Err.Error())
		}
		m.projects = msg.Projects
		m.syncHeader()
		return m, nil

	case connStateMsg:
		prev := m.connState
		m.connState = msg.State
		m.header.SetConnectionState(msg.State)
		if msg.State == transport.StateConnected && prev != transport.StateConnected {
			slog.Debug("tui: reconnected, refreshing")
			m.remount()
			return m, m.fetchProjects()
		}
		return m, nil

	case clearErrorMsg:
		m.helpBar.ClearError()
		return m, nil

	case projectChangedMsg:
		m.syncHeader()
	}

	for _, w := range m.widgets() {
		w.Update(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextProject):
		next, ok := m.nextProject()
		if !ok {
			return m.showError("no projects")
		}
		m.client.SelectProject(next)
		m.syncHeader()
		return m, nil

	case key.Matches(msg, m.keys.ToggleWorkQueue):
		if m.queue.Mounted() {
			m.queue.Unmount()
		} else {
			m.queue.Mount(m.client, m.post)
		}
		return m, nil

	case key.Matches(msg, m.keys.Launch):
		if !m.client.LaunchOptimizer() {
			return m.showError(api.ErrNoActiveProject.Error())
		}
		return m, nil

	case key.Matches(msg, m.keys.Reset):
		if !m.client.ResetOptimizer() {
			return m.showError(api.ErrNoActiveProject.Error())
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.remount()
		return m, m.fetchProjects()

	case key.Matches(msg, m.keys.Help):
		m.helpBar.ToggleFull()
		return m, nil
	}
	return m, nil
}

func (m Model) showError(text string) (tea.Model, tea.Cmd) {
	m.helpBar.SetError(text)
	return m, clearErrorAfter(errorTimeout)
}

// remount re-subscribes mounted widgets, which re-requests their data.
func (m Model) remount() {
	for _, w := range m.widgets() {
		if w.Mounted() {
			w.Unmount()
			w.Mount(m.client, m.post)
		}
	}
}

// nextProject returns the project after the active one in list order.
func (m Model) nextProject() (string, bool) {
	if len(m.projects) == 0 {
		return "", false
	}
	active, _ := m.client.ActiveProject()
	i := slices.IndexFunc(m.projects, func(p api.ProjectInfo) bool { return p.ProjectName == active })
	return m.projects[(i+1)%len(m.projects)].ProjectName, true
}

func (m *Model) syncHeader() {
	active, _ := m.client.ActiveProject()
	m.header.SetProject(active, len(m.projects))
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	spin := m.spinner.View()
	parts := []string{m.header.View()}
	for _, w := range m.widgets() {
		if w.Mounted() {
			parts = append(parts, w.View(m.width, spin))
		}
	}
	parts = append(parts, m.helpBar.View())
	return strings.Join(parts, "\n")
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func Run(ctx context.Context, client api.Client) error {
	var p *tea.Program
	mb := newMailbox(func(msg tea.Msg) { p.Send(msg) })
	model := NewWithClient(client, mb.Post)
	p = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	removeState := client.OnStateChange(func(s transport.State) {
		mb.Post(connStateMsg{State: s})
	})

	slog.Debug("tui.Run: running program")
	_, err := p.Run()
	slog.Debug("tui.Run: program exited", "error", err)

	removeState()
	model.Close()
	mb.Close()

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
