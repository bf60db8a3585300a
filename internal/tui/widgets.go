package tui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/fbmon/internal/api"
	"github.com/tessro/fbmon/internal/project"
	"github.com/tessro/fbmon/internal/registry"
)

type widgetID int

const (
	widgetStatus widgetID = iota
	widgetWorkQueue
	widgetOptimizer
)

// Widget is a dashboard panel. A mounted widget holds a project change
// subscription and its push registrations; Unmount releases all of them.
type Widget interface {
	ID() widgetID
	Title() string
	Mounted() bool
	Mount(c api.Client, post func(tea.Msg))
	Unmount()
	Update(msg tea.Msg)
	View(width int, spin string) string
}

var (
	_ Widget = (*StatusWidget)(nil)
	_ Widget = (*WorkQueueWidget)(nil)
	_ Widget = (*OptimizerWidget)(nil)
)

// mount tracks the subscriptions of a mounted widget.
type mount struct {
	client  api.Client
	post    func(tea.Msg)
	project string
	handle  project.Handle
	tokens  []registry.Token
	ctx     context.Context
	cancel  context.CancelFunc
}

func (m *mount) mounted() bool { return m.client != nil }

func (m *mount) attach(id widgetID, c api.Client, post func(tea.Msg)) {
	m.client = c
	m.post = post
	m.project, _ = c.ActiveProject()
	m.handle = c.OnProjectChange(project.ChangeFunc(func(name string) {
		post(projectChangedMsg{Widget: id, Project: name})
	}))
	m.renew()
}

// renew cancels outstanding requests and returns a fresh request context.
func (m *mount) renew() context.Context {
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m.ctx
}

func (m *mount) detach() {
	if m.client == nil {
		return
	}
	for _, tok := range m.tokens {
		m.client.Unregister(tok)
	}
	m.client.RemoveProjectChange(m.handle)
	if m.cancel != nil {
		m.cancel()
	}
	*m = mount{}
}

// StatusWidget shows the optimizer status of the active project.
type StatusWidget struct {
	mount
	status  api.Status
	updated time.Time
	waiting bool
}

func NewStatusWidget() *StatusWidget { return &StatusWidget{} }

func (w *StatusWidget) ID() widgetID  { return widgetStatus }
func (w *StatusWidget) Title() string { return "Optimizer" }
func (w *StatusWidget) Mounted() bool { return w.mounted() }

func (w *StatusWidget) Mount(c api.Client, post func(tea.Msg)) {
	if w.mounted() {
		return
	}
	w.attach(widgetStatus, c, post)
	w.tokens = append(w.tokens, c.OnStatus(func(u api.StatusUpdate) {
		post(statusMsg{Update: u})
	}))
	w.pull()
}

func (w *StatusWidget) Unmount() {
	w.detach()
	w.status = ""
	w.waiting = false
}

func (w *StatusWidget) pull() {
	w.waiting = w.client.PullStatus()
}

func (w *StatusWidget) Update(msg tea.Msg) {
	if !w.mounted() {
		return
	}
	switch msg := msg.(type) {
	case statusMsg:
		if msg.Update.ProjectName != w.project {
			return
		}
		w.status = msg.Update.Status
		w.updated = time.Now()
		w.waiting = false
	case projectChangedMsg:
		if msg.Widget != widgetStatus {
			return
		}
		w.project = msg.Project
		w.status = ""
		w.pull()
	}
}

func (w *StatusWidget) View(width int, spin string) string {
	var b strings.Builder
	switch {
	case w.project == "":
		b.WriteString(widgetEmptyStyle.Render("No project selected"))
	case w.status == "" && w.waiting:
		b.WriteString(spin + " waiting for status")
	case w.status == "":
		b.WriteString(widgetEmptyStyle.Render("No status"))
	default:
		b.WriteString(labelStyle.Render("Status  ") + statusStyleFor(w.status).Render(string(w.status)))
		if !w.updated.IsZero() {
			b.WriteString(labelStyle.Render(fmt.Sprintf("  (%s ago)", formatDuration(time.Since(w.updated)))))
		}
	}
	return panel(w.Title(), b.String(), width)
}

// WorkQueueWidget shows worker and job counters.
type WorkQueueWidget struct {
	mount
	queue   *api.WorkQueueStatus
	err     error
	waiting bool
}

func NewWorkQueueWidget() *WorkQueueWidget { return &WorkQueueWidget{} }

func (w *WorkQueueWidget) ID() widgetID  { return widgetWorkQueue }
func (w *WorkQueueWidget) Title() string { return "Work queue" }
func (w *WorkQueueWidget) Mounted() bool { return w.mounted() }

func (w *WorkQueueWidget) Mount(c api.Client, post func(tea.Msg)) {
	if w.mounted() {
		return
	}
	w.attach(widgetWorkQueue, c, post)
	w.tokens = append(w.tokens, c.OnWorkQueueStatus(func(q api.WorkQueueStatus) {
		post(workQueueMsg{Project: q.ProjectName, Status: &q})
	}))
	w.fetch()
}

func (w *WorkQueueWidget) Unmount() {
	w.detach()
	w.queue = nil
	w.err = nil
	w.waiting = false
}

func (w *WorkQueueWidget) fetch() {
	ctx := w.renew()
	name, post := w.project, w.post
	w.waiting = w.client.GetWorkQueueStatus(ctx, func(q *api.WorkQueueStatus, err error) {
		post(workQueueMsg{Project: name, Status: q, Err: err})
	})
}

func (w *WorkQueueWidget) Update(msg tea.Msg) {
	if !w.mounted() {
		return
	}
	switch msg := msg.(type) {
	case workQueueMsg:
		if msg.Project != w.project {
			return
		}
		w.waiting = false
		w.err = msg.Err
		if msg.Err == nil {
			w.queue = msg.Status
		}
	case projectChangedMsg:
		if msg.Widget != widgetWorkQueue {
			return
		}
		w.project = msg.Project
		w.queue = nil
		w.err = nil
		w.fetch()
	}
}

func (w *WorkQueueWidget) View(width int, spin string) string {
	var body string
	switch {
	case w.err != nil:
		body = errorBarStyle.Render(w.err.Error())
	case w.queue == nil && w.waiting:
		body = spin + " loading"
	case w.queue == nil:
		body = widgetEmptyStyle.Render("No data")
	default:
		barWidth := max(width-28, 5)
		q := w.queue
		body = strings.Join([]string{
			labelStyle.Render("Workers ") + fmt.Sprintf("%s %d/%d", progressBar(q.WorkerRunning, q.WorkerTotal, barWidth), q.WorkerRunning, q.WorkerTotal),
			labelStyle.Render("Jobs    ") + fmt.Sprintf("%s %d/%d", progressBar(q.JobFinished, q.JobTotal, barWidth), q.JobFinished, q.JobTotal),
		}, "\n")
		if q.Description != "" {
			body += "\n" + labelStyle.Render(q.Description)
		}
	}
	return panel(w.Title(), body, width)
}

// OptimizerWidget shows the objective history of the active project.
type OptimizerWidget struct {
	mount
	state   api.OptimizerState
	err     error
	waiting bool
	maxRows int
}

func NewOptimizerWidget() *OptimizerWidget { return &OptimizerWidget{maxRows: 8} }

func (w *OptimizerWidget) ID() widgetID  { return widgetOptimizer }
func (w *OptimizerWidget) Title() string { return "Iterations" }
func (w *OptimizerWidget) Mounted() bool { return w.mounted() }

func (w *OptimizerWidget) Mount(c api.Client, post func(tea.Msg)) {
	if w.mounted() {
		return
	}
	w.attach(widgetOptimizer, c, post)
	w.tokens = append(w.tokens, c.OnOptimizerState(func() {
		post(optimizerTriggerMsg{})
	}))
	w.fetch()
}

func (w *OptimizerWidget) Unmount() {
	w.detach()
	w.state = nil
	w.err = nil
	w.waiting = false
}

func (w *OptimizerWidget) fetch() {
	ctx := w.renew()
	name, post := w.project, w.post
	w.waiting = w.client.GetOptimizerState(ctx, func(s api.OptimizerState, err error) {
		post(optimizerStateMsg{Project: name, State: s, Err: err})
	})
}

func (w *OptimizerWidget) Update(msg tea.Msg) {
	if !w.mounted() {
		return
	}
	switch msg := msg.(type) {
	case optimizerTriggerMsg:
		w.fetch()
	case optimizerStateMsg:
		if msg.Project != w.project {
			return
		}
		w.waiting = false
		w.err = msg.Err
		if msg.Err == nil {
			w.state = msg.State
		}
	case projectChangedMsg:
		if msg.Widget != widgetOptimizer {
			return
		}
		w.project = msg.Project
		w.state = nil
		w.err = nil
		w.fetch()
	}
}

func (w *OptimizerWidget) View(width int, spin string) string {
	var lines []string
	switch {
	case w.err != nil:
		lines = append(lines, errorBarStyle.Render(w.err.Error()))
	case w.state == nil && w.waiting:
		lines = append(lines, spin+" loading")
	case len(w.state.Iterations()) == 0:
		lines = append(lines, widgetEmptyStyle.Render("No iterations yet"))
	default:
		iters := w.state.Iterations()
		latest, last, _ := w.state.Latest()
		lines = append(lines, labelStyle.Render("Iteration ")+strconv.Itoa(latest)+
			labelStyle.Render("  objective ")+fmt.Sprintf("%.6g", last.ObjTotal)+
			objectiveDelta(w.state, iters))
		names := slices.Sorted(maps.Keys(last.ObjDict))
		for i, name := range names {
			if i == w.maxRows {
				lines = append(lines, labelStyle.Render(fmt.Sprintf("… %d more targets", len(names)-i)))
				break
			}
			term := last.ObjDict[name]
			lines = append(lines, truncate(fmt.Sprintf("  %-24s %12.6g", name, term.X*term.W), width-4))
		}
	}
	return panel(w.Title(), strings.Join(lines, "\n"), width)
}

// objectiveDelta formats the change of the total objective from the
// previous iteration.
func objectiveDelta(state api.OptimizerState, iters []int) string {
	if len(iters) < 2 {
		return ""
	}
	prev := state[strconv.Itoa(iters[len(iters)-2])].ObjTotal
	cur := state[strconv.Itoa(iters[len(iters)-1])].ObjTotal
	return labelStyle.Render(fmt.Sprintf("  (%+.3g)", cur-prev))
}

func statusStyleFor(s api.Status) lipgloss.Style {
	switch s {
	case api.StatusRunning:
		return statusRunningStyle
	case api.StatusFinished:
		return statusFinishedStyle
	case api.StatusError:
		return statusErrorStyle
	default:
		return statusIdleStyle
	}
}
