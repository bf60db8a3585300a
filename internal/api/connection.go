// Package api is the client core of fbmon: one Connection owns the
// transport, the active project and the push registry, and exposes the
// optimizer server's commands.
package api

import (
	"context"
	"log/slog"

	"github.com/tessro/fbmon/internal/config"
	"github.com/tessro/fbmon/internal/event"
	"github.com/tessro/fbmon/internal/project"
	"github.com/tessro/fbmon/internal/registry"
	"github.com/tessro/fbmon/internal/transport"
)

// Options configures a Connection.
type Options struct {
	// SelectFirstProject makes Bootstrap select the first listed project.
	SelectFirstProject bool

	Logger *slog.Logger
}

// stateful is implemented by transports that report connection state.
type stateful interface {
	State() transport.State
	OnStateChange(fn func(transport.State)) event.Handle
	OffStateChange(hd event.Handle)
}

// Connection is the shared client object. Create one per server and pass it
// to every consumer.
type Connection struct {
	transport transport.Transport
	projects  *project.Context
	registry  *registry.Registry
	opts      Options
	log       *slog.Logger

	closer interface{ Close() error }
}

// New creates a Connection over an existing transport.
func New(t transport.Transport, opts Options) *Connection {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	projects := project.NewContext()
	c := &Connection{
		transport: t,
		projects:  projects,
		registry:  registry.New(t, projects),
		opts:      opts,
		log:       opts.Logger.With("component", "api"),
	}
	if cl, ok := t.(interface{ Close() error }); ok {
		c.closer = cl
	}
	return c
}

// Dial builds a websocket transport from cfg, starts it and returns the
// Connection. The connection is established in the background; use
// WaitConnected to block until the namespace is joined.
func Dial(ctx context.Context, cfg *config.Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ws := transport.New(transport.Options{
		URL:               transport.Endpoint(cfg.Server.Host, cfg.Server.Port, cfg.Server.Path, cfg.Server.Secure),
		Namespace:         cfg.Server.Namespace,
		RequestTimeout:    cfg.Client.RequestTimeout,
		ReconnectDelay:    cfg.Client.ReconnectDelay,
		ReconnectMaxDelay: cfg.Client.ReconnectMaxDelay,
		ReconnectAttempts: cfg.Client.ReconnectAttempts,
	})
	c := New(ws, Options{SelectFirstProject: cfg.Client.SelectFirstProject})
	ws.Start(ctx)
	c.log.Info("dialing optimizer server", "addr", cfg.Address(), "namespace", cfg.Server.Namespace)
	return c, nil
}

// Projects returns the project context.
func (c *Connection) Projects() *project.Context { return c.projects }

// SelectProject makes name the active project. It reports whether the
// active project changed.
func (c *Connection) SelectProject(name string) bool {
	changed := c.projects.SetActive(name)
	if changed {
		c.log.Info("project selected", "project", name)
	}
	return changed
}

// ActiveProject returns the active project name.
func (c *Connection) ActiveProject() (string, bool) {
	return c.projects.Active()
}

// OnProjectChange subscribes sub to active project changes.
func (c *Connection) OnProjectChange(sub project.ChangeSubscriber) project.Handle {
	return c.projects.AddChangeSubscriber(sub)
}

// RemoveProjectChange removes a subscription made with OnProjectChange.
func (c *Connection) RemoveProjectChange(hd project.Handle) bool {
	return c.projects.RemoveChangeSubscriber(hd)
}

// Register subscribes l to pushes named name for the active project.
func (c *Connection) Register(name string, l registry.Listener) registry.Token {
	return c.registry.Register(name, l)
}

// Unregister removes a registration made with Register.
func (c *Connection) Unregister(tok registry.Token) bool {
	return c.registry.Unregister(tok)
}

// OnStatus calls fn with every status update of the active project.
func (c *Connection) OnStatus(fn func(StatusUpdate)) registry.Token {
	return onPush(c, EventStatus, fn)
}

// OnWorkQueueStatus calls fn with every work queue update of the active
// project.
func (c *Connection) OnWorkQueueStatus(fn func(WorkQueueStatus)) registry.Token {
	return onPush(c, EventWorkQueueStatus, fn)
}

// OnOptimizerState calls fn when a new iteration of the active project
// finished. The push carries no state; call GetOptimizerState to fetch it.
func (c *Connection) OnOptimizerState(fn func()) registry.Token {
	return c.registry.Register(EventOptimizerState, registry.ListenerFunc(func(string, registry.Payload) {
		fn()
	}))
}

func onPush[T any](c *Connection, name string, fn func(T)) registry.Token {
	return c.registry.Register(name, registry.ListenerFunc(func(_ string, p registry.Payload) {
		var v T
		if err := p.Decode(&v); err != nil {
			c.log.Warn("malformed push payload", "event", name, "error", err)
			return
		}
		fn(v)
	}))
}

// State returns the connection state. Transports that do not track state
// always report StateConnected.
func (c *Connection) State() transport.State {
	if s, ok := c.transport.(stateful); ok {
		return s.State()
	}
	return transport.StateConnected
}

// OnStateChange calls fn on every connection state transition. The
// returned func removes the subscription.
func (c *Connection) OnStateChange(fn func(transport.State)) (remove func()) {
	s, ok := c.transport.(stateful)
	if !ok {
		return func() {}
	}
	hd := s.OnStateChange(fn)
	return func() { s.OffStateChange(hd) }
}

// WaitConnected blocks until the transport is connected, is closed, or ctx
// ends.
func (c *Connection) WaitConnected(ctx context.Context) error {
	states := make(chan transport.State, 1)
	remove := c.OnStateChange(func(s transport.State) {
		select {
		case states <- s:
		default:
		}
	})
	defer remove()

	for {
		switch c.State() {
		case transport.StateConnected:
			return nil
		case transport.StateClosed:
			return transport.ErrClosed
		}
		select {
		case <-states:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close removes every push registration and closes the transport.
func (c *Connection) Close() error {
	c.registry.Close()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
