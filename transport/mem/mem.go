// Package mem is an in-process Network for tests. Listeners are registered by
// name and dialing one returns one end of a synchronous net.Pipe.
package mem

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"node-rpc/transport"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
)

var (
	ErrAddrInUse   = errors.New("mem: address already in use")
	ErrNoListener  = errors.New("mem: connection refused")
	ErrListenerEnd = errors.New("mem: listener closed")
)

// Addr is an address on a mem Network.
type Addr string

func (Addr) Network() string  { return "mem" }
func (a Addr) String() string { return string(a) }

// Network is a namespace of in-memory listeners.
type Network struct {
	mu        deadlock.Mutex
	listeners map[string]*listener
	next      int
}

func New() *Network {
	return &Network{listeners: make(map[string]*listener)}
}

// Listen registers addr. An empty addr, or one ending in ":0", gets a fresh name.
func (n *Network) Listen(addr string) (transport.Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if addr == "" || strings.HasSuffix(addr, ":0") {
		n.next++
		addr = fmt.Sprintf("mem-%d", n.next)
	}
	if _, ok := n.listeners[addr]; ok {
		return nil, errors.Wrap(ErrAddrInUse, addr)
	}
	l := &listener{
		net:     n,
		addr:    Addr(addr),
		pending: make(chan transport.Link),
		done:    make(chan struct{}),
	}
	n.listeners[addr] = l
	return l, nil
}

func (n *Network) Dial(ctx context.Context, addr string) (transport.Link, error) {
	n.mu.Lock()
	n.next++
	local := Addr(fmt.Sprintf("mem-client-%d", n.next))
	l, ok := n.listeners[addr]
	n.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(ErrNoListener, addr)
	}

	client, server := net.Pipe()
	select {
	case l.pending <- &link{Conn: server, local: l.addr, remote: local}:
		return &link{Conn: client, local: local, remote: l.addr}, nil
	case <-l.done:
	case <-ctx.Done():
	}
	_ = client.Close()
	_ = server.Close()
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return nil, errors.Wrap(ErrNoListener, addr)
}

func (n *Network) remove(l *listener) {
	n.mu.Lock()
	if n.listeners[string(l.addr)] == l {
		delete(n.listeners, string(l.addr))
	}
	n.mu.Unlock()
}

type listener struct {
	net       *Network
	addr      Addr
	pending   chan transport.Link
	done      chan struct{}
	closeOnce sync.Once
}

func (l *listener) Accept() (transport.Link, error) {
	select {
	case c := <-l.pending:
		return c, nil
	case <-l.done:
		return nil, errors.WithStack(ErrListenerEnd)
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.net.remove(l)
	})
	return nil
}

func (l *listener) Addr() net.Addr { return l.addr }

// link reports mem addresses instead of net.Pipe's anonymous ones.
type link struct {
	net.Conn
	local, remote Addr
}

func (c *link) LocalAddr() net.Addr  { return c.local }
func (c *link) RemoteAddr() net.Addr { return c.remote }
