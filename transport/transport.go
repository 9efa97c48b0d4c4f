// Package transport carries frames between two nodes.
//
// A Network produces raw Links (a TCP socket, an in-memory pipe, a QUIC connection).
// A Host turns links into handshaked Conns and reports everything that happens on
// them as Events in one queue. The node pump is the only consumer of that queue, so
// all connection state changes are observed on a single lane, while the I/O itself
// runs on per-connection goroutines:
//
//	Dial/Accept ──▶ handshake (Hello / HelloAck) ──▶ Conn
//	  Conn.readLoop     ──frame──▶ ┐
//	  Conn.datagramLoop ──frame──▶ ├──▶ Host event queue ──▶ Host.Receive (node pump)
//	  Conn.shutdown     ──────────▶ ┘
//	  Conn.Send ──▶ priority send queue ──▶ Conn.writeLoop ──▶ link
//	  Conn.heartbeatLoop: probe every interval, shut down when nothing arrived for DeadAfter
package transport

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

// Link is a reliable, ordered byte stream between two endpoints.
type Link interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// DatagramLink is a Link that can also carry unreliable datagrams, one frame each.
type DatagramLink interface {
	Link
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
}

// Listener accepts inbound links.
type Listener interface {
	Accept() (Link, error)
	Close() error
	Addr() net.Addr
}

// Network creates links of one kind.
type Network interface {
	Listen(addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Link, error)
}

var (
	ErrClosed           = errors.New("transport: connection closed")
	ErrHostClosed       = errors.New("transport: host closed")
	ErrQueueFull        = errors.New("transport: send queue full")
	ErrHandshake        = errors.New("transport: handshake failed")
	ErrPeerDead         = errors.New("transport: peer missed heartbeats")
	ErrRemoteGoodbye    = errors.New("transport: peer said goodbye")
	ErrAlreadyListening = errors.New("transport: host already listening")
)

// EventKind tells what happened on a connection.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
	EventConnectFailed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventMessage:
		return "Message"
	case EventConnectFailed:
		return "ConnectFailed"
	default:
		return "Unknown"
	}
}

// Event is one entry of the host's event queue.
type Event struct {
	Kind  EventKind
	Conn  *Conn  // nil for EventConnectFailed
	Addr  string // dial target for outbound EventConnected and EventConnectFailed
	Codec byte   // EventMessage: codec type announced by the frame
	Body  []byte // EventMessage: encoded message
	Err   error  // EventDisconnected and EventConnectFailed: the cause
}
