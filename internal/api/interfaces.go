package api

import (
	"context"

	"github.com/tessro/fbmon/internal/project"
	"github.com/tessro/fbmon/internal/registry"
	"github.com/tessro/fbmon/internal/transport"
)

// Client defines what UI consumers need from a Connection.
// This interface enables unit testing of widgets without a live server.
type Client interface {
	// Project context
	SelectProject(name string) bool
	ActiveProject() (string, bool)
	OnProjectChange(sub project.ChangeSubscriber) project.Handle
	RemoveProjectChange(hd project.Handle) bool

	// Push subscriptions
	Register(name string, l registry.Listener) registry.Token
	Unregister(tok registry.Token) bool
	OnStatus(fn func(StatusUpdate)) registry.Token
	OnWorkQueueStatus(fn func(WorkQueueStatus)) registry.Token
	OnOptimizerState(fn func()) registry.Token

	// Commands
	ListProjects(ctx context.Context, cb func([]ProjectInfo, error))
	CreateProject(name string)
	LaunchOptimizer() bool
	ResetOptimizer() bool
	PullStatus() bool
	GetWorkQueueStatus(ctx context.Context, cb func(*WorkQueueStatus, error)) bool
	GetOptimizerState(ctx context.Context, cb func(OptimizerState, error)) bool

	// Connection
	State() transport.State
	OnStateChange(fn func(transport.State)) (remove func())
}

// Compile-time assertions to verify Connection implements all interfaces.
var (
	_ Client = (*Connection)(nil)
)
