package event

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

type connState int

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnected
)

func TestEmitter_DeliversTransitionsInOrder(t *testing.T) {
	var e Emitter[connState]
	var seen []connState
	e.OnEvent(func(s connState) { seen = append(seen, s) })

	e.Emit(stateConnecting)
	e.Emit(stateConnected)
	e.Emit(stateDisconnected)

	want := []connState{stateConnecting, stateConnected, stateDisconnected}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}

func TestEmitter_HandlersRunInRegistrationOrder(t *testing.T) {
	var e Emitter[connState]
	var order []string
	e.OnEvent(func(connState) { order = append(order, "header") })
	e.OnEvent(func(connState) { order = append(order, "widgets") })

	e.Emit(stateConnected)

	if !reflect.DeepEqual(order, []string{"header", "widgets"}) {
		t.Errorf("order = %v, want [header widgets]", order)
	}
}

func TestEmitter_HandlesAreDistinct(t *testing.T) {
	var e Emitter[connState]
	h := func(connState) {}
	a := e.OnEvent(h)
	b := e.OnEvent(h)

	if a == 0 || b == 0 || a == b {
		t.Errorf("handles = %d, %d; want distinct non-zero", a, b)
	}
	if e.Len() != 2 {
		t.Errorf("Len() = %d, want 2", e.Len())
	}
}

func TestEmitter_OffStopsDelivery(t *testing.T) {
	var e Emitter[connState]
	var calls atomic.Int32
	hd := e.OnEvent(func(connState) { calls.Add(1) })

	e.Emit(stateConnected)
	e.Off(hd)
	e.Off(hd)
	e.Off(0)
	e.Emit(stateDisconnected)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if e.Len() != 0 {
		t.Errorf("Len() = %d, want 0", e.Len())
	}
}

func TestEmitter_SubscribeDuringEmitSeesNextEvent(t *testing.T) {
	var e Emitter[connState]
	var late []connState
	var once sync.Once
	e.OnEvent(func(connState) {
		once.Do(func() {
			e.OnEvent(func(s connState) { late = append(late, s) })
		})
	})

	e.Emit(stateConnecting)
	e.Emit(stateConnected)

	if !reflect.DeepEqual(late, []connState{stateConnected}) {
		t.Errorf("late = %v, want [connected]", late)
	}
}

func TestEmitter_UnsubscribeFromHandler(t *testing.T) {
	var e Emitter[connState]
	var got []connState
	var hd Handle
	hd = e.OnEvent(func(s connState) {
		got = append(got, s)
		if s == stateConnected {
			e.Off(hd)
		}
	})

	e.Emit(stateConnecting)
	e.Emit(stateConnected)
	e.Emit(stateDisconnected)

	if !reflect.DeepEqual(got, []connState{stateConnecting, stateConnected}) {
		t.Errorf("got = %v", got)
	}
}

func TestEmitter_ConcurrentSubscribeAndEmit(t *testing.T) {
	var e Emitter[connState]
	var wg sync.WaitGroup
	var handles sync.Map

	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hd := e.OnEvent(func(connState) {})
			handles.Store(hd, true)
		}()
		go func() {
			defer wg.Done()
			e.Emit(stateConnected)
		}()
	}
	wg.Wait()

	n := 0
	handles.Range(func(key, _ any) bool {
		n++
		e.Off(key.(Handle))
		return true
	})
	if n != 32 {
		t.Errorf("distinct handles = %d, want 32", n)
	}
	if e.Len() != 0 {
		t.Errorf("Len() = %d after removing all, want 0", e.Len())
	}
}
