package transport

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/tessro/fbmon/internal/event"
	"github.com/tessro/fbmon/internal/id"
	"github.com/tessro/fbmon/internal/logging"
	"github.com/tessro/fbmon/internal/sio"
)

// ErrQueueFull is delivered to a request whose frame was evicted from the
// send queue while the transport was disconnected.
var ErrQueueFull = errors.New("transport: send queue full")

// Defaults applied by New for zero Options fields.
const (
	DefaultQueueSize         = 256
	DefaultReconnectDelay    = time.Second
	DefaultReconnectMaxDelay = 30 * time.Second
	DefaultDialTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second

	// maxMessageSize bounds inbound frames. Objective tables can be large.
	maxMessageSize = 16 << 20
)

// Options configures a WebSocket transport.
type Options struct {
	// URL is the Engine.IO websocket endpoint, usually built with Endpoint.
	URL string

	// Namespace is the Socket.IO namespace to join ("/" if empty).
	Namespace string

	// Auth is sent with the namespace CONNECT packet when non-nil.
	Auth any

	// Header is added to the websocket upgrade request.
	Header http.Header

	// RequestTimeout fails requests with ErrRequestTimedOut. Zero disables it.
	RequestTimeout time.Duration

	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration

	// ReconnectAttempts caps consecutive failed connection attempts before
	// the transport closes itself. Zero retries forever.
	ReconnectAttempts int

	// QueueSize bounds the frames buffered while disconnected.
	QueueSize int

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Endpoint builds the websocket URL of a Socket.IO server.
func Endpoint(host string, port int, path string, secure bool) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	if path == "" {
		path = "/socket.io/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	q := url.Values{}
	q.Set("EIO", strconv.Itoa(sio.EngineVersion))
	q.Set("transport", "websocket")
	u := url.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     path,
		RawQuery: q.Encode(),
	}
	return u.String()
}

type outFrame struct {
	data string
	id   uint64 // ack id for requests, 0 for commands
}

type pendingRequest struct {
	name    string
	fn      ResponseFunc
	frame   string
	timer   *time.Timer
	stopCtx func() bool

	// written is set once the frame reached a connection; such requests
	// are sent again after a reconnect.
	written bool
}

func (pr *pendingRequest) stop() {
	if pr.timer != nil {
		pr.timer.Stop()
	}
	if pr.stopCtx != nil {
		pr.stopCtx()
	}
}

type pushEntry struct {
	id uint64
	h  PushHandler
}

// WebSocket is a Transport over a reconnecting Socket.IO websocket session.
//
// Callbacks (responses, pushes and state changes) run one at a time on a
// single dispatcher goroutine, in arrival order.
type WebSocket struct {
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	nextID      atomic.Uint64
	nextHandler atomic.Uint64

	wake    chan struct{}
	runDone chan struct{}

	states event.Emitter[State]

	dmu sync.Mutex
	// +checklocks:dmu
	dqueue []func()
	// +checklocks:dmu
	dstopped bool
	dsignal  chan struct{}

	mu sync.Mutex
	// +checklocks:mu
	state State
	// +checklocks:mu
	started bool
	// +checklocks:mu
	closed bool
	// +checklocks:mu
	ready bool
	// +checklocks:mu
	sid string
	// +checklocks:mu
	queue []outFrame
	// +checklocks:mu
	pending map[uint64]*pendingRequest
	// +checklocks:mu
	handlers map[string]pushEntry
}

var _ Transport = (*WebSocket)(nil)

// New creates a transport. No connection is made until Start is called,
// but messages may be sent immediately; they are queued.
func New(opts Options) *WebSocket {
	if opts.Namespace == "" {
		opts.Namespace = sio.DefaultNamespace
	}
	if !strings.HasPrefix(opts.Namespace, "/") {
		opts.Namespace = "/" + opts.Namespace
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ReconnectMaxDelay < opts.ReconnectDelay {
		opts.ReconnectMaxDelay = max(DefaultReconnectMaxDelay, opts.ReconnectDelay)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &WebSocket{
		opts:     opts,
		log:      opts.Logger.With("component", "transport", "conn", id.Generate(), "namespace", opts.Namespace),
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		runDone:  make(chan struct{}),
		dsignal:  make(chan struct{}, 1),
		pending:  make(map[uint64]*pendingRequest),
		handlers: make(map[string]pushEntry),
	}
	go w.dispatchLoop()
	return w
}

// Start launches the connection supervisor. The transport closes when ctx
// is cancelled. Calling Start more than once has no effect.
func (w *WebSocket) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	context.AfterFunc(ctx, func() { _ = w.Close() })
	go w.run()
}

// Close stops the transport and fails every pending request with ErrClosed.
// It waits for the connection supervisor to exit.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	pending := w.pending
	w.pending = make(map[uint64]*pendingRequest)
	w.queue = nil
	w.state = StateClosed
	w.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(pending)) {
		pr := pending[id]
		pr.stop()
		w.respond(pr.fn, nil, ErrClosed)
	}
	w.post(func() { w.states.Emit(StateClosed) })
	w.cancel()
	if started {
		<-w.runDone
	}
	w.log.Debug("transport closed", "failed_requests", len(pending))
	return nil
}

// State returns the current connection state.
func (w *WebSocket) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SID returns the Socket.IO session id of the current connection, or ""
// when the namespace is not connected.
func (w *WebSocket) SID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sid
}

// OnStateChange registers fn to be called on every state transition.
func (w *WebSocket) OnStateChange(fn func(State)) event.Handle {
	return w.states.OnEvent(fn)
}

// OffStateChange removes a handler added with OnStateChange.
func (w *WebSocket) OffStateChange(hd event.Handle) {
	w.states.Off(hd)
}

// SendRequest implements Transport.
func (w *WebSocket) SendRequest(ctx context.Context, name string, arg any, onResponse ResponseFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	id := w.nextID.Add(1)
	frame, err := w.encodeEvent(name, arg, id)
	if err != nil {
		w.respond(onResponse, nil, err)
		return
	}

	pr := &pendingRequest{name: name, fn: onResponse, frame: frame}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.respond(onResponse, nil, ErrClosed)
		return
	}
	if t := w.opts.RequestTimeout; t > 0 {
		pr.timer = time.AfterFunc(t, func() { w.expire(id) })
	}
	if ctx.Done() != nil {
		pr.stopCtx = context.AfterFunc(ctx, func() { w.abandon(id) })
	}
	w.pending[id] = pr
	victim := w.enqueueLocked(outFrame{data: frame, id: id})
	w.mu.Unlock()

	w.evict(victim)
	w.signal()
}

// SendCommand implements Transport.
func (w *WebSocket) SendCommand(name string, arg any) {
	frame, err := w.encodeEvent(name, arg, 0)
	if err != nil {
		w.log.Error("dropping command", "event", name, "error", err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.log.Warn("command sent on closed transport", "event", name)
		return
	}
	victim := w.enqueueLocked(outFrame{data: frame})
	w.mu.Unlock()

	w.evict(victim)
	w.signal()
}

// OnPush implements Transport.
func (w *WebSocket) OnPush(name string, h PushHandler) (remove func()) {
	id := w.nextHandler.Add(1)

	w.mu.Lock()
	if _, ok := w.handlers[name]; ok {
		w.log.Debug("replacing push handler", "event", name)
	}
	w.handlers[name] = pushEntry{id: id, h: h}
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if e, ok := w.handlers[name]; ok && e.id == id {
			delete(w.handlers, name)
		}
	}
}

func (w *WebSocket) encodeEvent(name string, arg any, id uint64) (string, error) {
	p, err := sio.NewEvent(w.opts.Namespace, name, Args(arg)...)
	if err != nil {
		return "", err
	}
	if id != 0 {
		p.HasID = true
		p.ID = id
	}
	return sio.EncodeMessage(p)
}

// enqueueLocked appends f to the send queue, evicting the oldest frame when
// the queue is full. An evicted request is removed from pending and
// returned so the caller can fail it outside the lock.
//
// +checklocks:w.mu
func (w *WebSocket) enqueueLocked(f outFrame) *pendingRequest {
	var victim *pendingRequest
	if len(w.queue) >= w.opts.QueueSize {
		old := w.queue[0]
		w.queue = w.queue[1:]
		w.log.Warn("send queue full, dropping oldest message", "queue_size", w.opts.QueueSize)
		if old.id != 0 {
			victim = w.pending[old.id]
			delete(w.pending, old.id)
		}
	}
	w.queue = append(w.queue, f)
	return victim
}

func (w *WebSocket) evict(pr *pendingRequest) {
	if pr == nil {
		return
	}
	pr.stop()
	w.respond(pr.fn, nil, ErrQueueFull)
}

func (w *WebSocket) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// take removes and returns the pending request for id, or nil if it was
// already completed.
func (w *WebSocket) take(id uint64) *pendingRequest {
	w.mu.Lock()
	pr := w.pending[id]
	delete(w.pending, id)
	w.mu.Unlock()
	if pr != nil {
		pr.stop()
	}
	return pr
}

func (w *WebSocket) complete(id uint64, reply json.RawMessage) {
	pr := w.take(id)
	if pr == nil {
		w.log.Debug("dropping reply for unknown request", "id", id)
		return
	}
	w.respond(pr.fn, reply, nil)
}

func (w *WebSocket) expire(id uint64) {
	pr := w.take(id)
	if pr == nil {
		return
	}
	w.log.Warn("request timed out", "event", pr.name, "id", id, "timeout", w.opts.RequestTimeout)
	w.respond(pr.fn, nil, ErrRequestTimedOut)
}

func (w *WebSocket) abandon(id uint64) {
	if pr := w.take(id); pr != nil {
		w.log.Debug("request abandoned", "event", pr.name, "id", id)
	}
}

// respond schedules fn on the dispatcher, or runs it directly once the
// dispatcher has stopped.
func (w *WebSocket) respond(fn ResponseFunc, reply json.RawMessage, err error) {
	if fn == nil {
		return
	}
	call := func() { fn(reply, err) }
	if !w.post(call) {
		w.safeCall(call)
	}
}

func (w *WebSocket) post(fn func()) bool {
	w.dmu.Lock()
	if w.dstopped {
		w.dmu.Unlock()
		return false
	}
	w.dqueue = append(w.dqueue, fn)
	w.dmu.Unlock()

	select {
	case w.dsignal <- struct{}{}:
	default:
	}
	return true
}

func (w *WebSocket) dispatchLoop() {
	for {
		w.dmu.Lock()
		fns := w.dqueue
		w.dqueue = nil
		w.dmu.Unlock()

		for _, fn := range fns {
			w.safeCall(fn)
		}
		if len(fns) > 0 {
			continue
		}

		select {
		case <-w.dsignal:
		case <-w.ctx.Done():
			w.dmu.Lock()
			w.dstopped = true
			fns = w.dqueue
			w.dqueue = nil
			w.dmu.Unlock()
			for _, fn := range fns {
				w.safeCall(fn)
			}
			return
		}
	}
}

func (w *WebSocket) safeCall(fn func()) {
	defer logging.LogPanic("transport-dispatch", nil)
	fn()
}

func (w *WebSocket) setState(s State) {
	w.mu.Lock()
	if w.state == s || w.state == StateClosed {
		w.mu.Unlock()
		return
	}
	w.state = s
	w.mu.Unlock()
	w.post(func() { w.states.Emit(s) })
}

// run is the connection supervisor: it keeps one session alive, backing
// off exponentially between failed attempts.
func (w *WebSocket) run() {
	defer close(w.runDone)
	defer logging.LogPanic("transport-supervisor", nil)

	delay := w.opts.ReconnectDelay
	failures := 0
	for {
		connected, err := w.session(w.ctx)
		w.disconnected()
		if w.ctx.Err() != nil {
			return
		}
		if connected {
			delay = w.opts.ReconnectDelay
			failures = 0
		}
		failures++
		if n := w.opts.ReconnectAttempts; n > 0 && failures > n {
			w.log.Error("giving up on server", "url", w.opts.URL, "attempts", failures, "error", err)
			go func() { _ = w.Close() }()
			return
		}
		w.log.Warn("server connection lost", "url", w.opts.URL, "error", err, "retry_in", delay, "attempt", failures)

		t := time.NewTimer(delay)
		select {
		case <-w.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, w.opts.ReconnectMaxDelay)
	}
}

// session runs one connection until it fails. It reports whether the
// namespace was joined during the session.
func (w *WebSocket) session(ctx context.Context) (bool, error) {
	w.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, w.opts.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, w.opts.URL, &websocket.DialOptions{HTTPHeader: w.opts.Header})
	cancel()
	if err != nil {
		return false, errors.Wrapf(err, "dial %s", w.opts.URL)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxMessageSize)

	hs, err := w.handshake(ctx, conn)
	if err != nil {
		return false, err
	}

	connect, err := sio.NewConnect(w.opts.Namespace, w.opts.Auth)
	if err != nil {
		return false, err
	}
	frame, err := sio.EncodeMessage(connect)
	if err != nil {
		return false, err
	}
	if err := w.write(ctx, conn, frame); err != nil {
		return false, err
	}

	var joined atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.readPump(gctx, conn, hs, &joined) })
	g.Go(func() error { return w.writePump(gctx, conn) })
	err = g.Wait()

	if ctx.Err() != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	return joined.Load(), err
}

func (w *WebSocket) handshake(ctx context.Context, conn *websocket.Conn) (sio.Handshake, error) {
	hctx, cancel := context.WithTimeout(ctx, w.opts.DialTimeout)
	defer cancel()

	typ, data, err := conn.Read(hctx)
	if err != nil {
		return sio.Handshake{}, errors.Wrap(err, "read handshake")
	}
	if typ != websocket.MessageText {
		return sio.Handshake{}, errors.Wrap(sio.ErrUnsupportedPacket, "binary handshake")
	}
	ep, err := sio.DecodeEngine(string(data))
	if err != nil {
		return sio.Handshake{}, err
	}
	if ep.Type != sio.EngineOpen {
		return sio.Handshake{}, errors.Wrapf(sio.ErrMalformedPacket, "expected open packet, got %s", ep.Type)
	}
	hs, err := sio.ParseHandshake(ep.Data)
	if err != nil {
		return sio.Handshake{}, err
	}
	w.log.Debug("engine.io handshake", "sid", hs.SID, "ping_interval", hs.PingInterval, "ping_timeout", hs.PingTimeout)
	return hs, nil
}

func (w *WebSocket) readPump(ctx context.Context, conn *websocket.Conn, hs sio.Handshake, joined *atomic.Bool) error {
	deadline := hs.PingDeadline()
	for {
		rctx, cancel := ctx, context.CancelFunc(func() {})
		if deadline > 0 {
			rctx, cancel = context.WithTimeout(ctx, deadline)
		}
		typ, data, err := conn.Read(rctx)
		timedOut := ctx.Err() == nil && rctx.Err() != nil
		cancel()
		if err != nil {
			if timedOut {
				return errors.Errorf("no ping from server within %s", deadline)
			}
			return errors.Wrap(err, "read")
		}
		if typ != websocket.MessageText {
			w.log.Debug("ignoring binary frame", "size", len(data))
			continue
		}

		ep, err := sio.DecodeEngine(string(data))
		if err != nil {
			w.log.Warn("dropping engine.io frame", "error", err)
			continue
		}
		switch ep.Type {
		case sio.EnginePing:
			pong := sio.EnginePacket{Type: sio.EnginePong, Data: ep.Data}
			if err := w.write(ctx, conn, pong.Encode()); err != nil {
				return err
			}
		case sio.EngineClose:
			return errors.New("server closed the session")
		case sio.EngineMessage:
			if err := w.handleMessage(ep.Data, joined); err != nil {
				return err
			}
		case sio.EngineNoop, sio.EnginePong:
		default:
			w.log.Debug("ignoring engine.io packet", "type", ep.Type)
		}
	}
}

func (w *WebSocket) handleMessage(data string, joined *atomic.Bool) error {
	p, err := sio.Decode(data)
	if err != nil {
		w.log.Warn("dropping socket.io packet", "error", err)
		return nil
	}
	if p.Namespace != w.opts.Namespace {
		w.log.Debug("ignoring packet for other namespace", "packet_namespace", p.Namespace, "type", p.Type)
		return nil
	}

	switch p.Type {
	case sio.PacketConnect:
		var hello struct {
			SID string `json:"sid"`
		}
		if len(p.Data) > 0 {
			_ = json.Unmarshal(p.Data, &hello)
		}
		joined.Store(true)
		w.connected(hello.SID)

	case sio.PacketConnectError:
		return p.AsConnectError()

	case sio.PacketDisconnect:
		return errors.Errorf("server disconnected namespace %s", p.Namespace)

	case sio.PacketEvent:
		name, args, err := p.Event()
		if err != nil {
			w.log.Warn("dropping malformed event", "error", err)
			return nil
		}
		w.deliverPush(name, args)
		if p.HasID {
			w.ackServer(p.ID)
		}

	case sio.PacketAck:
		if !p.HasID {
			w.log.Warn("dropping ack without id")
			return nil
		}
		args, err := p.Args()
		if err != nil {
			w.log.Warn("dropping malformed ack", "id", p.ID, "error", err)
			return nil
		}
		var reply json.RawMessage
		if len(args) > 0 {
			reply = args[0]
		}
		w.complete(p.ID, reply)
	}
	return nil
}

func (w *WebSocket) deliverPush(name string, args []json.RawMessage) {
	w.mu.Lock()
	e, ok := w.handlers[name]
	w.mu.Unlock()
	if !ok {
		w.log.Debug("no handler for push", "event", name)
		return
	}
	var payload json.RawMessage
	if len(args) > 0 {
		payload = args[0]
	}
	w.post(func() { e.h(payload) })
}

// ackServer answers a server event that requested an acknowledgement.
func (w *WebSocket) ackServer(id uint64) {
	p, err := sio.NewAck(w.opts.Namespace, id)
	if err != nil {
		return
	}
	frame, err := sio.EncodeMessage(p)
	if err != nil {
		return
	}
	w.mu.Lock()
	victim := w.enqueueLocked(outFrame{data: frame})
	w.mu.Unlock()
	w.evict(victim)
	w.signal()
}

// connected marks the namespace joined and queues requests that were
// written to an earlier connection but never answered.
func (w *WebSocket) connected(sid string) {
	w.mu.Lock()
	w.ready = true
	w.sid = sid
	var resend []outFrame
	for id, pr := range w.pending {
		if pr.written {
			pr.written = false
			resend = append(resend, outFrame{data: pr.frame, id: id})
		}
	}
	slices.SortFunc(resend, func(a, b outFrame) int { return cmp.Compare(a.id, b.id) })
	w.queue = append(resend, w.queue...)
	queued := len(w.queue)
	w.mu.Unlock()

	w.log.Info("connected to server", "url", w.opts.URL, "sid", sid, "queued", queued, "resent", len(resend))
	w.setState(StateConnected)
	w.signal()
}

func (w *WebSocket) disconnected() {
	w.mu.Lock()
	w.ready = false
	w.sid = ""
	w.mu.Unlock()
	w.setState(StateDisconnected)
}

func (w *WebSocket) writePump(ctx context.Context, conn *websocket.Conn) error {
	for {
		f, ok := w.nextFrame()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.wake:
			}
			continue
		}
		if err := w.write(ctx, conn, f.data); err != nil {
			w.requeue(f)
			return err
		}
		if f.id != 0 {
			w.markWritten(f.id)
		}
	}
}

func (w *WebSocket) nextFrame() (outFrame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready || len(w.queue) == 0 {
		return outFrame{}, false
	}
	f := w.queue[0]
	w.queue = w.queue[1:]
	return f, true
}

func (w *WebSocket) requeue(f outFrame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if f.id != 0 {
		if _, ok := w.pending[f.id]; !ok {
			return
		}
	}
	w.queue = append([]outFrame{f}, w.queue...)
}

func (w *WebSocket) markWritten(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pr, ok := w.pending[id]; ok {
		pr.written = true
	}
}

func (w *WebSocket) write(ctx context.Context, conn *websocket.Conn, frame string) error {
	wctx, cancel := context.WithTimeout(ctx, w.opts.WriteTimeout)
	defer cancel()
	return errors.Wrap(conn.Write(wctx, websocket.MessageText, []byte(frame)), "write")
}
