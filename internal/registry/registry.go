// Package registry fans server push events out to listeners, delivering
// only payloads that belong to the active project.
package registry

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/tessro/fbmon/internal/event"
	"github.com/tessro/fbmon/internal/logging"
	"github.com/tessro/fbmon/internal/project"
	"github.com/tessro/fbmon/internal/transport"
)

// Payload is one push event addressed to a project.
type Payload struct {
	ProjectName string
	Raw         json.RawMessage
}

// Decode unmarshals the full payload into v.
func (p Payload) Decode(v any) error {
	return errors.Wrap(json.Unmarshal(p.Raw, v), "decode push payload")
}

// Listener receives push events for the active project.
type Listener interface {
	HandlePush(event string, p Payload)
}

// ListenerFunc adapts a function to Listener. Every registration of a
// ListenerFunc is distinct.
type ListenerFunc func(event string, p Payload)

// HandlePush calls f(event, p).
func (f ListenerFunc) HandlePush(event string, p Payload) { f(event, p) }

// Token identifies one registration. The zero Token matches nothing. A
// token only matches the subscription it was issued from, so it stays
// inert after that subscription is torn down and recreated.
type Token struct {
	event  string
	sub    *subscription
	handle event.Handle
}

// Event returns the event name the token was registered for.
func (t Token) Event() string { return t.event }

// Valid reports whether t came from Register.
func (t Token) Valid() bool { return t.handle != 0 }

type subscription struct {
	listeners event.List[Listener]
	remove    func()
}

// Registry multiplexes transport pushes to listeners. Exactly one
// transport handler exists per event name that has listeners.
type Registry struct {
	transport transport.Transport
	projects  *project.Context
	log       *slog.Logger

	mu sync.Mutex
	// +checklocks:mu
	events map[string]*subscription
}

// New creates a Registry that filters by the active project of projects.
func New(t transport.Transport, projects *project.Context) *Registry {
	return &Registry{
		transport: t,
		projects:  projects,
		log:       slog.Default().With("component", "registry"),
		events:    make(map[string]*subscription),
	}
}

// Register adds l as a listener for name. The first listener for a name
// installs the transport handler. Registering the same pointer listener
// twice returns the existing token and does not duplicate delivery.
func (r *Registry) Register(name string, l Listener) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.events[name]
	if !ok {
		sub = &subscription{}
		sub.remove = r.transport.OnPush(name, func(raw json.RawMessage) {
			r.dispatch(name, sub, raw)
		})
		r.events[name] = sub
		r.log.Debug("installed push handler", "event", name)
	}
	hd, _ := sub.listeners.Add(event.IdentityKey(l), l)
	return Token{event: name, sub: sub, handle: hd}
}

// Unregister removes the registration for tok. Removing the last listener
// for an event tears down its transport handler. It reports whether a
// registration was removed.
func (r *Registry) Unregister(tok Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.events[tok.event]
	if !ok || sub != tok.sub {
		return false
	}
	removed, empty := sub.listeners.Remove(tok.handle)
	if removed && empty {
		r.teardownLocked(tok.event, sub)
	}
	return removed
}

// Close removes every listener and transport handler.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, sub := range r.events {
		r.teardownLocked(name, sub)
	}
}

// +checklocks:r.mu
func (r *Registry) teardownLocked(name string, sub *subscription) {
	delete(r.events, name)
	if sub.remove != nil {
		sub.remove()
	}
	r.log.Debug("removed push handler", "event", name)
}

// Listeners returns the number of listeners registered for name.
func (r *Registry) Listeners(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.events[name]; ok {
		return sub.listeners.Len()
	}
	return 0
}

// Events returns the event names that have listeners, sorted.
func (r *Registry) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for name := range r.events {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) dispatch(name string, sub *subscription, raw json.RawMessage) {
	var head struct {
		ProjectName *string `json:"projectName"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.ProjectName == nil {
		r.log.Debug("dropping push without project", "event", name)
		return
	}
	p := Payload{ProjectName: *head.ProjectName, Raw: raw}
	for _, l := range sub.listeners.Snapshot() {
		// A listener may switch projects; the rest must not see a stale payload.
		if !r.isActive(p.ProjectName) {
			return
		}
		deliver(l, name, p)
	}
}

func (r *Registry) isActive(name string) bool {
	active, ok := r.projects.Active()
	return ok && name == active
}

func deliver(l Listener, name string, p Payload) {
	defer logging.LogPanic("push-listener", nil)
	l.HandlePush(name, p)
}
