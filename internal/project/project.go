// Package project tracks which optimizer project is selected and notifies
// subscribers when the selection changes.
package project

import (
	"sync"

	"github.com/tessro/fbmon/internal/event"
	"github.com/tessro/fbmon/internal/logging"
)

// Handle identifies a change subscription.
type Handle = event.Handle

// ChangeSubscriber is notified when the active project changes. An empty
// name means no project is selected.
type ChangeSubscriber interface {
	ProjectChanged(name string)
}

// ChangeFunc adapts a function to ChangeSubscriber. Every registration of
// a ChangeFunc is distinct, since functions cannot be compared.
type ChangeFunc func(name string)

// ProjectChanged calls f(name).
func (f ChangeFunc) ProjectChanged(name string) { f(name) }

// Context holds the active project name.
//
// Changes are delivered to subscribers in registration order, outside the
// lock. Changes made while a notification pass is running (including from
// a subscriber) are queued and delivered after that pass completes, so
// every subscriber observes changes in the order they were made.
type Context struct {
	subs event.List[ChangeSubscriber]

	mu sync.Mutex
	// +checklocks:mu
	name string
	// +checklocks:mu
	queue []string
	// +checklocks:mu
	delivering bool
}

// NewContext returns a Context with no active project.
func NewContext() *Context {
	return &Context{}
}

// Active returns the active project name and whether one is selected.
func (c *Context) Active() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name, c.name != ""
}

// SetActive makes name the active project. It does nothing if name is
// already active; otherwise subscribers are notified once. It reports
// whether the selection changed. An empty name clears the selection.
func (c *Context) SetActive(name string) bool {
	c.mu.Lock()
	return c.transitionLocked(name)
}

// compareAndSet switches from old to name only if old is still active.
func (c *Context) compareAndSet(old, name string) bool {
	c.mu.Lock()
	if c.name != old {
		c.mu.Unlock()
		return false
	}
	return c.transitionLocked(name)
}

// transitionLocked performs the change and delivers notifications. It is
// called with c.mu held and returns with it released.
func (c *Context) transitionLocked(name string) bool {
	if name == c.name {
		c.mu.Unlock()
		return false
	}
	c.name = name
	c.queue = append(c.queue, name)
	if c.delivering {
		c.mu.Unlock()
		return true
	}

	c.delivering = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		c.notify(next)
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
	return true
}

// Clear deselects the active project, notifying subscribers with "".
func (c *Context) Clear() bool {
	return c.SetActive("")
}

// AddChangeSubscriber registers sub. Adding a pointer subscriber that is
// already registered returns its existing handle.
func (c *Context) AddChangeSubscriber(sub ChangeSubscriber) Handle {
	hd, _ := c.subs.Add(event.IdentityKey(sub), sub)
	return hd
}

// RemoveChangeSubscriber removes the subscription for hd. Unknown handles
// are ignored.
func (c *Context) RemoveChangeSubscriber(hd Handle) bool {
	removed, _ := c.subs.Remove(hd)
	return removed
}

// Subscribers returns the number of registered subscribers.
func (c *Context) Subscribers() int {
	return c.subs.Len()
}

func (c *Context) notify(name string) {
	for _, sub := range c.subs.Snapshot() {
		deliver(sub, name)
	}
}

func deliver(sub ChangeSubscriber, name string) {
	defer logging.LogPanic("project-change-subscriber", nil)
	sub.ProjectChanged(name)
}
