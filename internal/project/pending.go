package project

import "sync"

// PendingState is the lifecycle of an optimistic selection.
type PendingState int

const (
	// StatePending means the project is selected locally but the server
	// has not confirmed it exists.
	StatePending PendingState = iota
	StateActive
	StateRolledBack
)

func (s PendingState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Pending is an optimistic selection awaiting confirmation. It is created
// by Begin and resolved exactly once by Confirm or Rollback.
type Pending struct {
	ctx      *Context
	name     string
	previous string

	mu sync.Mutex
	// +checklocks:mu
	state PendingState
}

// Begin selects name immediately and returns a Pending that can undo the
// selection if the server later rejects it.
func (c *Context) Begin(name string) *Pending {
	previous, _ := c.Active()
	c.SetActive(name)
	return &Pending{ctx: c, name: name, previous: previous, state: StatePending}
}

// Name returns the optimistically selected project.
func (p *Pending) Name() string { return p.name }

// State returns the current state.
func (p *Pending) State() PendingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Confirm marks the selection accepted. It reports false if the pending
// selection was already resolved.
func (p *Pending) Confirm() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePending {
		return false
	}
	p.state = StateActive
	return true
}

// Rollback restores the previous selection, but only while the optimistic
// project is still the active one; a later explicit selection wins. It
// reports false if the pending selection was already resolved.
func (p *Pending) Rollback() bool {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return false
	}
	p.state = StateRolledBack
	p.mu.Unlock()

	p.ctx.compareAndSet(p.name, p.previous)
	return true
}
