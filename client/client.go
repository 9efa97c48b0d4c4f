// Package client keeps a dial-only node connected to one of several servers.
package client

import (
	"context"
	"slices"
	"time"

	"node-rpc/loadbalance"
	"node-rpc/node"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoServer = errors.New("client: no server reachable")
	ErrClosed   = errors.New("client: closed")
)

type Client struct {
	node      *node.Node
	balancer  loadbalance.Balancer // choose which server a new session goes to
	endpoints []loadbalance.Endpoint
	log       *logrus.Entry

	cancel context.CancelFunc
	done   chan struct{}

	mu      deadlock.Mutex
	session *node.NodeProxy
	closed  bool
}

// New wraps n, which must not be started yet.
func New(n *node.Node, bal loadbalance.Balancer, endpoints []loadbalance.Endpoint) *Client {
	c := &Client{
		node:      n,
		balancer:  bal,
		endpoints: endpoints,
		log:       n.Log().WithField("balancer", bal.Name()),
		done:      make(chan struct{}),
	}
	n.OnNodeDisconnected(c.dropped)
	return c
}

func (c *Client) Node() *node.Node { return c.node }

// Start starts the node without a listener and pumps it every tick until Close.
func (c *Client) Start(tick time.Duration) error {
	if err := c.node.Start(""); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		_ = c.node.Run(ctx, tick)
	}()
	return nil
}

// Session returns the live session, connecting first when there is none. Servers
// that cannot be reached are skipped until one answers or none is left.
func (c *Client) Session(ctx context.Context) (*node.NodeProxy, error) {
	c.mu.Lock()
	closed, session := c.closed, c.session
	c.mu.Unlock()
	if closed {
		return nil, errors.WithStack(ErrClosed)
	}
	if session != nil {
		return session, nil
	}

	remaining := slices.Clone(c.endpoints)
	var lastErr error = ErrNoServer
	for len(remaining) > 0 {
		e, err := c.balancer.Pick(remaining)
		if err != nil {
			return nil, err
		}
		addr := e.Addr
		p, err := c.node.Connect(addr).Wait(ctx)
		if err == nil {
			c.mu.Lock()
			c.session = p
			c.mu.Unlock()
			c.log.WithField("server", addr).Info("session established")
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "connect")
		}
		lastErr = err
		c.log.WithError(err).WithField("server", addr).Warn("server unreachable")
		remaining = slices.DeleteFunc(remaining, func(x loadbalance.Endpoint) bool { return x.Addr == addr })
	}
	return nil, errors.Wrap(ErrNoServer, lastErr.Error())
}

func (c *Client) dropped(p *node.NodeProxy) {
	c.mu.Lock()
	if c.session == p {
		c.session = nil
	}
	c.mu.Unlock()
}

// Close stops the pump and the node. Pending calls fail.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.node.Stop()
}
