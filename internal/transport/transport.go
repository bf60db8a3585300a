// Package transport carries named messages between the client and the
// optimizer server over one persistent Socket.IO connection.
package transport

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Sentinel errors delivered to ResponseFunc callbacks.
var (
	// ErrClosed is delivered to pending requests when the transport shuts down.
	ErrClosed = errors.New("transport: closed")

	// ErrRequestTimedOut is delivered when a request outlives the configured timeout.
	ErrRequestTimedOut = errors.New("transport: request timed out")
)

// NoArg is passed as the argument of messages that carry no payload.
var NoArg any = noArg{}

type noArg struct{}

// ResponseFunc receives the first acknowledgement argument of a request, or an
// error if the request could not complete. It is invoked at most once.
type ResponseFunc func(reply json.RawMessage, err error)

// PushHandler receives the first argument of a server-initiated event.
type PushHandler func(payload json.RawMessage)

// Transport is the message channel consumed by the client core.
type Transport interface {
	// SendRequest sends name with arg and calls onResponse with the reply.
	// If ctx is cancelled before the reply arrives, onResponse is dropped.
	SendRequest(ctx context.Context, name string, arg any, onResponse ResponseFunc)

	// SendCommand sends name with arg without expecting a reply.
	SendCommand(name string, arg any)

	// OnPush installs the handler for pushes named name, replacing any
	// previous one. The returned func removes it.
	OnPush(name string, h PushHandler) (remove func())
}

// Args converts a single optional argument into an event argument list.
func Args(arg any) []any {
	if arg == NoArg {
		return nil
	}
	return []any{arg}
}

// State describes the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
