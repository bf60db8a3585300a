package api

import (
	"context"

	"github.com/tessro/fbmon/internal/registry"
)

type result[T any] struct {
	v   T
	err error
}

// Await issues a callback command and blocks for its reply. issue reports
// whether the command was sent; when it was skipped, Await returns
// ErrNoActiveProject.
//
//	params, err := api.Await(ctx, conn.GetInputParams)
func Await[T any](ctx context.Context, issue func(context.Context, func(T, error)) bool) (T, error) {
	var zero T
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan result[T], 1)
	sent := issue(ctx, func(v T, err error) {
		select {
		case ch <- result[T]{v, err}:
		default:
		}
	})
	if !sent {
		return zero, ErrNoActiveProject
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Always adapts a command that is never skipped for use with Await.
func Always[T any](fn func(context.Context, func(T, error))) func(context.Context, func(T, error)) bool {
	return func(ctx context.Context, cb func(T, error)) bool {
		fn(ctx, cb)
		return true
	}
}

// AwaitPush blocks until the next push named name for the active project
// arrives and decodes it into T.
func AwaitPush[T any](ctx context.Context, c Client, name string) (T, error) {
	var zero T
	ch := make(chan result[T], 1)
	tok := c.Register(name, registry.ListenerFunc(func(_ string, p registry.Payload) {
		var v T
		err := p.Decode(&v)
		select {
		case ch <- result[T]{v, err}:
		default:
		}
	}))
	defer c.Unregister(tok)

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
