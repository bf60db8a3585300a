// Package event provides ordered handler lists and event emission.
package event

// Emitter provides thread-safe event emission with handler registration.
// Handlers run synchronously, in registration order, on the emitting
// goroutine.
type Emitter[E any] struct {
	handlers List[func(E)]
}

// OnEvent registers an event handler and returns its handle.
func (e *Emitter[E]) OnEvent(handler func(E)) Handle {
	hd, _ := e.handlers.Add(nil, handler)
	return hd
}

// Off removes the handler registered under hd. Unknown handles are ignored.
func (e *Emitter[E]) Off(hd Handle) {
	e.handlers.Remove(hd)
}

// Emit sends an event to all registered handlers.
// Handlers are called with a copy of the handler slice to allow
// safe iteration even if handlers are registered or removed during emission.
// Must not be called with lock held.
func (e *Emitter[E]) Emit(event E) {
	for _, h := range e.handlers.Snapshot() {
		h(event)
	}
}

// Len returns the number of registered handlers.
func (e *Emitter[E]) Len() int {
	return e.handlers.Len()
}
