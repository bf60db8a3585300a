// Package transporttest provides test doubles for transport.Transport.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tessro/fbmon/internal/transport"
)

// Message is one message sent through a Fake.
type Message struct {
	Name    string
	Arg     any // transport.NoArg when sent without an argument
	Request bool
}

type fakeRequest struct {
	ctx  context.Context
	name string
	fn   transport.ResponseFunc
}

type fakeHandler struct {
	id int
	h  transport.PushHandler
}

// Responder computes the reply to a request.
type Responder func(arg any) (any, error)

// Fake is an in-memory Transport. Replies and pushes are delivered
// synchronously on the goroutine that calls Respond or Push, which makes
// delivery order in tests deterministic.
type Fake struct {
	mu         sync.Mutex
	sent       []Message
	pending    []*fakeRequest
	handlers   map[string]fakeHandler
	installs   map[string]int
	responders map[string]Responder
	nextID     int
}

var _ transport.Transport = (*Fake)(nil)

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		handlers:   make(map[string]fakeHandler),
		installs:   make(map[string]int),
		responders: make(map[string]Responder),
	}
}

// HandleFunc makes requests named name answer immediately with fn's result.
func (f *Fake) HandleFunc(name string, fn Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[name] = fn
}

// SendRequest implements transport.Transport.
func (f *Fake) SendRequest(ctx context.Context, name string, arg any, onResponse transport.ResponseFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	f.mu.Lock()
	f.sent = append(f.sent, Message{Name: name, Arg: arg, Request: true})
	responder, ok := f.responders[name]
	if !ok {
		f.pending = append(f.pending, &fakeRequest{ctx: ctx, name: name, fn: onResponse})
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	reply, err := responder(arg)
	deliver(ctx, onResponse, reply, err)
}

// SendCommand implements transport.Transport.
func (f *Fake) SendCommand(name string, arg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Message{Name: name, Arg: arg})
}

// OnPush implements transport.Transport.
func (f *Fake) OnPush(name string, h transport.PushHandler) (remove func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.handlers[name] = fakeHandler{id: id, h: h}
	f.installs[name]++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if e, ok := f.handlers[name]; ok && e.id == id {
			delete(f.handlers, name)
		}
	}
}

// Respond answers the oldest pending request named name with reply. It
// reports whether such a request existed.
func (f *Fake) Respond(name string, reply any) bool {
	return f.finish(name, reply, nil)
}

// Fail answers the oldest pending request named name with err.
func (f *Fake) Fail(name string, err error) bool {
	return f.finish(name, nil, err)
}

func (f *Fake) finish(name string, reply any, err error) bool {
	f.mu.Lock()
	var req *fakeRequest
	for i, r := range f.pending {
		if r.name == name {
			req = r
			f.pending = append(f.pending[:i:i], f.pending[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
	if req == nil {
		return false
	}
	deliver(req.ctx, req.fn, reply, err)
	return true
}

func deliver(ctx context.Context, fn transport.ResponseFunc, reply any, err error) {
	if ctx.Err() != nil || fn == nil {
		return
	}
	if err != nil {
		fn(nil, err)
		return
	}
	raw, merr := marshal(reply)
	if merr != nil {
		fn(nil, merr)
		return
	}
	fn(raw, nil)
}

// Push delivers payload to the handler installed for name. It reports
// whether a handler was installed.
func (f *Fake) Push(name string, payload any) bool {
	f.mu.Lock()
	e, ok := f.handlers[name]
	f.mu.Unlock()
	if !ok {
		return false
	}
	raw, err := marshal(payload)
	if err != nil {
		panic("transporttest: marshal push payload: " + err.Error())
	}
	e.h(raw)
	return true
}

func marshal(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// Sent returns a copy of every message sent so far.
func (f *Fake) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentNames returns the names of every message sent so far, in order.
func (f *Fake) SentNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.sent))
	for i, m := range f.sent {
		names[i] = m.Name
	}
	return names
}

// Reset forgets sent messages. Pending requests and handlers are kept.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// Pending returns the number of unanswered requests named name.
func (f *Fake) Pending(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.pending {
		if r.name == name {
			n++
		}
	}
	return n
}

// HasHandler reports whether a push handler is installed for name.
func (f *Fake) HasHandler(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[name]
	return ok
}

// Handlers returns the number of installed push handlers.
func (f *Fake) Handlers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// Installs returns how many times OnPush was called for name.
func (f *Fake) Installs(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs[name]
}
