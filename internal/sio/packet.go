// Package sio encodes and decodes the Socket.IO wire format.
//
// # Framing
//
// A Socket.IO session runs on top of an Engine.IO session. Every websocket
// text frame is one Engine.IO packet: a single type digit followed by an
// optional payload. Socket.IO packets travel inside Engine.IO "message"
// packets (type 4):
//
//	4 2/api,17["list_projects"]
//	| | |    | |
//	| | |    | +-- JSON data (event: [name, args...], ack: [args...])
//	| | |    +---- ack id (optional)
//	| | +--------- namespace, omitted for "/"
//	| +----------- Socket.IO packet type
//	+------------- Engine.IO packet type
//
// Only text packets are supported. Binary events and acks are rejected
// with ErrUnsupportedPacket.
package sio

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Protocol versions spoken by this package.
const (
	EngineVersion = 4
	SocketVersion = 5
)

// DefaultNamespace is the root Socket.IO namespace.
const DefaultNamespace = "/"

// Codec errors.
var (
	ErrMalformedPacket   = errors.New("sio: malformed packet")
	ErrUnsupportedPacket = errors.New("sio: unsupported packet")
)

// EngineType identifies an Engine.IO packet.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

func (t EngineType) String() string {
	switch t {
	case EngineOpen:
		return "open"
	case EngineClose:
		return "close"
	case EnginePing:
		return "ping"
	case EnginePong:
		return "pong"
	case EngineMessage:
		return "message"
	case EngineUpgrade:
		return "upgrade"
	case EngineNoop:
		return "noop"
	}
	return "unknown(" + string(t) + ")"
}

// EnginePacket is one Engine.IO frame.
type EnginePacket struct {
	Type EngineType
	Data string
}

// Encode returns the wire form of the packet.
func (p EnginePacket) Encode() string {
	return string(p.Type) + p.Data
}

// DecodeEngine parses a single Engine.IO text frame.
func DecodeEngine(frame string) (EnginePacket, error) {
	if frame == "" {
		return EnginePacket{}, errors.Wrap(ErrMalformedPacket, "empty engine frame")
	}
	t := EngineType(frame[0])
	if t < EngineOpen || t > EngineNoop {
		return EnginePacket{}, errors.Wrapf(ErrMalformedPacket, "engine type %q", frame[0])
	}
	return EnginePacket{Type: t, Data: frame[1:]}, nil
}

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// ParseHandshake decodes the data of an open packet.
func ParseHandshake(data string) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return Handshake{}, errors.Wrap(ErrMalformedPacket, "handshake: "+err.Error())
	}
	if h.SID == "" {
		return Handshake{}, errors.Wrap(ErrMalformedPacket, "handshake: missing sid")
	}
	return h, nil
}

// PingDeadline is how long a client may wait for the next server ping
// before treating the connection as dead.
func (h Handshake) PingDeadline() time.Duration {
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// PacketType identifies a Socket.IO packet.
type PacketType int

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	// HasID reports whether the packet carries an ack id. Events with an
	// id expect an ACK packet with the same id in reply.
	HasID bool
	ID    uint64
	Data  json.RawMessage
}

// Encode returns the Socket.IO wire form of the packet (without the
// Engine.IO message prefix).
func (p Packet) Encode() (string, error) {
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return "", errors.Wrapf(ErrMalformedPacket, "packet type %d", p.Type)
	}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return "", errors.Wrap(ErrUnsupportedPacket, p.Type.String())
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(p.Type)))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		if !strings.HasPrefix(p.Namespace, "/") {
			return "", errors.Wrapf(ErrMalformedPacket, "namespace %q", p.Namespace)
		}
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasID {
		b.WriteString(strconv.FormatUint(p.ID, 10))
	}
	if len(p.Data) > 0 {
		b.Write(p.Data)
	}
	return b.String(), nil
}

// EncodeMessage wraps the packet in an Engine.IO message frame.
func EncodeMessage(p Packet) (string, error) {
	s, err := p.Encode()
	if err != nil {
		return "", err
	}
	return string(EngineMessage) + s, nil
}

// Decode parses the Socket.IO packet carried by an Engine.IO message.
func Decode(s string) (Packet, error) {
	if s == "" {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "empty packet")
	}
	if s[0] < '0' || s[0] > '6' {
		return Packet{}, errors.Wrapf(ErrMalformedPacket, "packet type %q", s[0])
	}
	p := Packet{Type: PacketType(s[0] - '0'), Namespace: DefaultNamespace}
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return Packet{}, errors.Wrap(ErrUnsupportedPacket, p.Type.String())
	}
	rest := s[1:]

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:end]
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseUint(rest[:digits], 10, 64)
		if err != nil {
			return Packet{}, errors.Wrap(ErrMalformedPacket, "ack id: "+err.Error())
		}
		p.HasID = true
		p.ID = id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, errors.Wrap(ErrMalformedPacket, "invalid json data")
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// NewEvent builds an EVENT packet. A nil args slice sends only the name.
func NewEvent(namespace, name string, args ...any) (Packet, error) {
	if name == "" {
		return Packet{}, errors.Wrap(ErrMalformedPacket, "empty event name")
	}
	data, err := json.Marshal(append([]any{name}, args...))
	if err != nil {
		return Packet{}, errors.Wrap(err, "marshal event "+name)
	}
	return Packet{Type: PacketEvent, Namespace: namespace, Data: data}, nil
}

// NewAck builds an ACK packet replying to the event with the given id.
func NewAck(namespace string, id uint64, args ...any) (Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, errors.Wrap(err, "marshal ack")
	}
	return Packet{Type: PacketAck, Namespace: namespace, HasID: true, ID: id, Data: data}, nil
}

// NewConnect builds a namespace CONNECT packet with optional auth data.
func NewConnect(namespace string, auth any) (Packet, error) {
	p := Packet{Type: PacketConnect, Namespace: namespace}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return Packet{}, errors.Wrap(err, "marshal connect auth")
		}
		p.Data = data
	}
	return p, nil
}

// Event splits an EVENT packet into its name and raw arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent {
		return "", nil, errors.Wrapf(ErrMalformedPacket, "%s is not an event", p.Type)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil {
		return "", nil, errors.Wrap(ErrMalformedPacket, "event data: "+err.Error())
	}
	if len(parts) == 0 {
		return "", nil, errors.Wrap(ErrMalformedPacket, "event without name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return "", nil, errors.Wrap(ErrMalformedPacket, "event name is not a string")
	}
	return name, parts[1:], nil
}

// Args returns the raw arguments of an ACK packet.
func (p Packet) Args() ([]json.RawMessage, error) {
	if len(p.Data) == 0 {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil {
		return nil, errors.Wrap(ErrMalformedPacket, "ack data: "+err.Error())
	}
	return args, nil
}

// ConnectError is the payload of a CONNECT_ERROR packet.
type ConnectError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ConnectError) Error() string {
	return "sio: connect error: " + e.Message
}

// AsConnectError decodes the payload of a CONNECT_ERROR packet.
func (p Packet) AsConnectError() *ConnectError {
	ce := &ConnectError{}
	if len(p.Data) == 0 || json.Unmarshal(p.Data, ce) != nil {
		// v4 servers send a bare string
		var msg string
		if json.Unmarshal(p.Data, &msg) == nil {
			ce.Message = msg
		}
	}
	if ce.Message == "" {
		ce.Message = "rejected"
	}
	return ce
}
