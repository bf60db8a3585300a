package event

import (
	"reflect"
	"sync"
)

// Handle identifies one registration in a List. The zero Handle is never
// issued.
type Handle uint64

type entry[H any] struct {
	handle Handle
	key    any
	h      H
}

// List is an ordered, concurrency-safe set of handlers. Handlers are kept in
// registration order and removed by the Handle returned from Add.
type List[H any] struct {
	mu sync.RWMutex
	// +checklocks:mu
	entries []entry[H]
	// +checklocks:mu
	last Handle
}

// Add appends h to the list. When key is non-nil and another entry was added
// with an equal key, nothing is appended and the existing handle is returned
// with added == false.
func (l *List[H]) Add(key any, h H) (hd Handle, added bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key != nil {
		for _, e := range l.entries {
			if e.key == key {
				return e.handle, false
			}
		}
	}
	l.last++
	l.entries = append(l.entries, entry[H]{handle: l.last, key: key, h: h})
	return l.last, true
}

// Remove deletes the entry for hd. It reports whether an entry was removed
// and whether the list is empty afterwards.
func (l *List[H]) Remove(hd Handle) (removed, empty bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.handle == hd {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true, len(l.entries) == 0
		}
	}
	return false, len(l.entries) == 0
}

// Snapshot returns the handlers in registration order. The returned slice
// is a copy, so callers may iterate it while handlers add or remove entries.
func (l *List[H]) Snapshot() []H {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]H, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.h
	}
	return out
}

// Len returns the number of registered handlers.
func (l *List[H]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// IdentityKey returns v as a dedup key when v has reference identity
// (pointers and channels), and nil otherwise. Func values are never
// comparable in Go, so handlers registered as funcs are never deduplicated.
func IdentityKey(v any) any {
	if v == nil {
		return nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return v
	}
	return nil
}
