// Package tcp carries node links over plain TCP sockets.
package tcp

import (
	"context"
	"net"
	"time"

	"node-rpc/transport"

	"github.com/pkg/errors"
)

// Network dials and listens on TCP. The zero value is ready to use.
type Network struct {
	KeepAlive time.Duration // 0 keeps the OS default
}

func New() *Network { return &Network{} }

func (n *Network) Listen(addr string) (transport.Listener, error) {
	lc := net.ListenConfig{KeepAlive: n.KeepAlive}
	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &listener{l: l}, nil
}

func (n *Network) Dial(ctx context.Context, addr string) (transport.Link, error) {
	d := net.Dialer{KeepAlive: n.KeepAlive}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	setNoDelay(c)
	return c, nil
}

type listener struct {
	l net.Listener
}

func (l *listener) Accept() (transport.Link, error) {
	c, err := l.l.Accept()
	if err != nil {
		return nil, err
	}
	setNoDelay(c)
	return c, nil
}

func (l *listener) Close() error   { return l.l.Close() }
func (l *listener) Addr() net.Addr { return l.l.Addr() }

// Frames are written whole, so Nagle only adds latency.
func setNoDelay(c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
