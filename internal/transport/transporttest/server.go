package transporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/tessro/fbmon/internal/id"
	"github.com/tessro/fbmon/internal/sio"
)

// HandlerFunc answers an event received by a Server. Its results become
// the ack arguments when the client asked for an acknowledgement.
type HandlerFunc func(args []json.RawMessage) []any

// Received is one event received by a Server.
type Received struct {
	Name  string
	Args  []json.RawMessage
	HasID bool
	ID    uint64
}

// ServerOptions tunes a Server.
type ServerOptions struct {
	Namespace    string
	PingInterval time.Duration
	PingTimeout  time.Duration

	// RejectConnect makes namespace CONNECT fail with this message.
	RejectConnect string
}

// Server is an in-process Socket.IO server speaking Engine.IO v4 over
// websocket. It records received events and lets tests push events and
// drop connections.
type Server struct {
	t    testing.TB
	opts ServerOptions
	ts   *httptest.Server

	received chan Received

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	conns    map[*serverConn]struct{}
	connects int
	pongs    int
	log      []Received
}

type serverConn struct {
	conn   *websocket.Conn
	sid    string
	joined bool
}

// NewServer starts a Server and stops it when the test ends.
func NewServer(t testing.TB, opts ServerOptions) *Server {
	t.Helper()
	if opts.Namespace == "" {
		opts.Namespace = sio.DefaultNamespace
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 20 * time.Second
	}
	s := &Server{
		t:        t,
		opts:     opts,
		received: make(chan Received, 1024),
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[*serverConn]struct{}),
	}

	r := chi.NewRouter()
	r.Get("/socket.io/", s.serveWS)
	s.ts = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// URL returns the websocket endpoint of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/socket.io/?EIO=4&transport=websocket"
}

// Handle registers the handler for events named name.
func (s *Server) Handle(name string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Emit pushes an event to every client joined to the namespace.
func (s *Server) Emit(name string, payload any) {
	p, err := sio.NewEvent(s.opts.Namespace, name, payload)
	if err != nil {
		s.t.Errorf("transporttest: encode %s: %v", name, err)
		return
	}
	frame, err := sio.EncodeMessage(p)
	if err != nil {
		s.t.Errorf("transporttest: encode %s: %v", name, err)
		return
	}
	for _, c := range s.joined() {
		s.write(c, frame)
	}
}

// DropConnections closes every client connection without a Socket.IO
// disconnect, as a network failure would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.conn.Close(websocket.StatusGoingAway, "dropped")
	}
}

// Connections returns the number of clients joined to the namespace.
func (s *Server) Connections() int {
	return len(s.joined())
}

// Connects returns how many namespace CONNECTs have been accepted.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Pongs returns how many pong packets clients have sent.
func (s *Server) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}

// Received returns every event received so far.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.log))
	copy(out, s.log)
	return out
}

// Next waits for the next received event.
func (s *Server) Next(ctx context.Context) (Received, error) {
	select {
	case r := <-s.received:
		return r, nil
	case <-ctx.Done():
		return Received{}, ctx.Err()
	}
}

// Close stops the server and closes all connections.
func (s *Server) Close() {
	s.DropConnections()
	s.ts.Close()
}

func (s *Server) joined() []*serverConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*serverConn
	for c := range s.conns {
		if c.joined {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	c := &serverConn{conn: conn, sid: id.Session()}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = conn.CloseNow()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	hs, _ := json.Marshal(sio.Handshake{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: int(s.opts.PingInterval / time.Millisecond),
		PingTimeout:  int(s.opts.PingTimeout / time.Millisecond),
		MaxPayload:   1000000,
	})
	if !s.write(c, sio.EnginePacket{Type: sio.EngineOpen, Data: string(hs)}.Encode()) {
		return
	}
	go s.pinger(ctx, c)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		ep, err := sio.DecodeEngine(string(data))
		if err != nil {
			continue
		}
		switch ep.Type {
		case sio.EnginePong:
			s.mu.Lock()
			s.pongs++
			s.mu.Unlock()
		case sio.EngineClose:
			return
		case sio.EngineMessage:
			s.handlePacket(c, ep.Data)
		}
	}
}

func (s *Server) pinger(ctx context.Context, c *serverConn) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !s.write(c, string(sio.EnginePing)) {
				return
			}
		}
	}
}

func (s *Server) handlePacket(c *serverConn, data string) {
	p, err := sio.Decode(data)
	if err != nil || p.Namespace != s.opts.Namespace {
		return
	}
	switch p.Type {
	case sio.PacketConnect:
		if s.opts.RejectConnect != "" {
			body, _ := json.Marshal(sio.ConnectError{Message: s.opts.RejectConnect})
			s.writePacket(c, sio.Packet{Type: sio.PacketConnectError, Namespace: s.opts.Namespace, Data: body})
			return
		}
		s.mu.Lock()
		c.joined = true
		s.connects++
		s.mu.Unlock()
		body := fmt.Sprintf(`{"sid":%q}`, c.sid)
		s.writePacket(c, sio.Packet{Type: sio.PacketConnect, Namespace: s.opts.Namespace, Data: json.RawMessage(body)})

	case sio.PacketDisconnect:
		s.mu.Lock()
		c.joined = false
		s.mu.Unlock()

	case sio.PacketEvent:
		name, args, err := p.Event()
		if err != nil {
			return
		}
		rec := Received{Name: name, Args: args, HasID: p.HasID, ID: p.ID}
		s.mu.Lock()
		s.log = append(s.log, rec)
		h := s.handlers[name]
		s.mu.Unlock()
		select {
		case s.received <- rec:
		default:
		}
		if h == nil || !p.HasID {
			if h != nil {
				h(args)
			}
			return
		}
		ack, err := sio.NewAck(s.opts.Namespace, p.ID, h(args)...)
		if err != nil {
			s.t.Errorf("transporttest: encode ack for %s: %v", name, err)
			return
		}
		s.writePacket(c, ack)
	}
}

func (s *Server) writePacket(c *serverConn, p sio.Packet) {
	frame, err := sio.EncodeMessage(p)
	if err != nil {
		s.t.Errorf("transporttest: encode %s: %v", p.Type, err)
		return
	}
	s.write(c, frame)
}

func (s *Server) write(c *serverConn, frame string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, []byte(frame)) == nil
}
