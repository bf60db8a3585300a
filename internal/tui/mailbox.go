package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tessro/fbmon/internal/logging"
)

// mailbox forwards messages posted from client callbacks to the program in
// order. Post never blocks, so callbacks that fire inside Update (such as
// project changes) cannot deadlock the event loop.
type mailbox struct {
	send func(tea.Msg)

	mu     sync.Mutex
	queue  []tea.Msg
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newMailbox(send func(tea.Msg)) *mailbox {
	mb := &mailbox{
		send:   send,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go mb.loop()
	return mb
}

// Post queues msg for delivery. Messages posted after Close are dropped.
func (mb *mailbox) Post(msg tea.Msg) {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.queue = append(mb.queue, msg)
	select {
	case mb.signal <- struct{}{}:
	default:
	}
	mb.mu.Unlock()
}

// Close stops delivery and waits for the forwarding goroutine to exit.
func (mb *mailbox) Close() {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return
	}
	mb.closed = true
	mb.queue = nil
	close(mb.signal)
	mb.mu.Unlock()
	<-mb.done
}

func (mb *mailbox) loop() {
	defer close(mb.done)
	defer logging.LogPanic("tui-mailbox", nil)
	for range mb.signal {
		for {
			mb.mu.Lock()
			if mb.closed || len(mb.queue) == 0 {
				mb.mu.Unlock()
				break
			}
			msg := mb.queue[0]
			mb.queue = mb.queue[1:]
			mb.mu.Unlock()
			mb.send(msg)
		}
	}
}
