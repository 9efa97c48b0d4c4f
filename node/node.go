// Package node ties the transport, the service host and the caller-side proxies
// together into one participant of the RPC mesh.
//
// All connection state changes are observed on the node pump, a single lane driven
// by Update (or Run). The pump drains the transport event queue in order:
//
//	EventConnected    → new NodeProxy → resolve Connect future → OnNodeConnected
//	EventMessage      → decode → Reply? NodeProxy.completeRequest
//	                           : ServiceHeader? server.Route
//	                           : drop
//	EventDisconnected → fail pending calls → forget NodeProxy → OnNodeDisconnected
//	EventConnectFailed→ fail Connect future
//
// Work from other goroutines reaches the pump through Post.
package node

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"node-rpc/codec"
	"node-rpc/future"
	"node-rpc/message"
	"node-rpc/middleware"
	"node-rpc/registry"
	"node-rpc/server"
	"node-rpc/transport"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

var (
	ErrDisconnected   = errors.New("node: peer disconnected")
	ErrConnectFailed  = errors.New("node: connect failed")
	ErrNotStarted     = errors.New("node: not started")
	ErrAlreadyStarted = errors.New("node: already started")
	ErrStopped        = errors.New("node: stopped")
)

// Config configures a Node.
type Config struct {
	ID       uint64
	External bool // connect as an external client rather than a cluster node
	Codec    codec.CodecType

	Transport transport.Config // NodeID and External are taken from above

	IdleServiceTimeout time.Duration // sweep idle auto-created services; 0 disables
	MaxEventsPerTick   int
	ShutdownTimeout    time.Duration // wait for in-flight dispatches on Stop
}

const (
	DefaultMaxEventsPerTick = 256
	DefaultShutdownTimeout  = 5 * time.Second
)

type Node struct {
	cfg    Config
	reg    *registry.Registry
	log    *logrus.Entry
	host   *transport.Host
	server *server.Server
	codecs *codec.Set
	codec  codec.Codec // outbound

	ctx    context.Context // parent of every OperationContext
	cancel context.CancelFunc

	started atomic.Bool
	stopped atomic.Bool

	mu             deadlock.Mutex
	posted         []func()
	peers          map[*transport.Conn]*NodeProxy
	sessions       map[string]*NodeProxy // live outbound sessions by dial address
	connecting     map[string]*future.Future[*NodeProxy]
	onConnected    []func(*NodeProxy)
	onDisconnected []func(*NodeProxy)
	lastSweep      time.Time

	wake chan struct{}
}

// New builds a node serving the services of reg over network. Middlewares wrap every
// inbound dispatch, outermost first.
func New(reg *registry.Registry, network transport.Network, cfg Config, log *logrus.Entry, middlewares ...middleware.Middleware) (*Node, error) {
	out, err := codec.NewSet(reg.Factory()).Get(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if cfg.MaxEventsPerTick <= 0 {
		cfg.MaxEventsPerTick = DefaultMaxEventsPerTick
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	cfg.Transport.NodeID = cfg.ID
	cfg.Transport.External = cfg.External

	log = log.WithField("node", cfg.ID)
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:        cfg,
		reg:        reg,
		log:        log,
		host:       transport.NewHost(network, cfg.Transport, log),
		server:     server.NewServer(reg, log, middlewares...),
		codecs:     codec.NewSet(reg.Factory()),
		codec:      out,
		ctx:        ctx,
		cancel:     cancel,
		peers:      make(map[*transport.Conn]*NodeProxy),
		sessions:   make(map[string]*NodeProxy),
		connecting: make(map[string]*future.Future[*NodeProxy]),
		lastSweep:  time.Now(),
		wake:       make(chan struct{}, 1),
	}, nil
}

func (n *Node) ID() uint64                  { return n.cfg.ID }
func (n *Node) Registry() *registry.Registry { return n.reg }
func (n *Node) Server() *server.Server       { return n.server }
func (n *Node) Log() *logrus.Entry           { return n.log }

// Addr is the bound listen address, or nil for a node that does not listen.
func (n *Node) Addr() net.Addr { return n.host.Addr() }

// Start brings the node up. A non-empty endpoint is listened on for inbound peers;
// with an empty one the node only dials out.
func (n *Node) Start(endpoint string) error {
	if n.stopped.Load() {
		return errors.WithStack(ErrStopped)
	}
	if !n.started.CompareAndSwap(false, true) {
		return errors.WithStack(ErrAlreadyStarted)
	}
	if endpoint != "" {
		if err := n.host.Listen(endpoint); err != nil {
			n.started.Store(false)
			return err
		}
	}
	n.log.WithField("endpoint", endpoint).Info("node started")
	return nil
}

// Stop closes every session, waits for in-flight dispatches and runs the pump one
// last time so that every OnNodeDisconnected fires. Call it from the pump lane.
func (n *Node) Stop() {
	if !n.stopped.CompareAndSwap(false, true) {
		return
	}
	_ = n.host.Close()
	for n.Update() > 0 {
	}
	if err := n.server.Shutdown(n.cfg.ShutdownTimeout); err != nil {
		n.log.WithError(err).Warn("services did not finish in time")
	}
	n.Update()
	n.cancel()

	n.mu.Lock()
	connecting := n.connecting
	n.connecting = make(map[string]*future.Future[*NodeProxy])
	n.mu.Unlock()
	for addr, f := range connecting {
		f.Fail(errors.Wrapf(ErrStopped, "connect %s", addr))
	}
	n.log.Info("node stopped")
}

// Connect returns the session with endpoint. While a session with endpoint is being
// established or is live, every call returns the same future.
func (n *Node) Connect(endpoint string) *future.Future[*NodeProxy] {
	if !n.started.Load() {
		return future.Failed[*NodeProxy](errors.WithStack(ErrNotStarted))
	}
	if n.stopped.Load() {
		return future.Failed[*NodeProxy](errors.WithStack(ErrStopped))
	}

	n.mu.Lock()
	if f, ok := n.connecting[endpoint]; ok {
		n.mu.Unlock()
		return f
	}
	f := future.New[*NodeProxy]()
	n.connecting[endpoint] = f
	n.mu.Unlock()

	n.log.WithField("endpoint", endpoint).Debug("connecting")
	n.host.Connect(endpoint)
	return f
}

// OnNodeConnected subscribes fn to new sessions. It runs on the pump lane.
func (n *Node) OnNodeConnected(fn func(*NodeProxy)) {
	n.mu.Lock()
	n.onConnected = append(n.onConnected, fn)
	n.mu.Unlock()
}

// OnNodeDisconnected subscribes fn to ended sessions. It receives the same
// *NodeProxy that OnNodeConnected delivered for the session.
func (n *Node) OnNodeDisconnected(fn func(*NodeProxy)) {
	n.mu.Lock()
	n.onDisconnected = append(n.onDisconnected, fn)
	n.mu.Unlock()
}

// Post runs fn on the pump lane during the next Update.
func (n *Node) Post(fn func()) {
	n.mu.Lock()
	n.posted = append(n.posted, fn)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Peers returns the live sessions.
func (n *Node) Peers() []*NodeProxy {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*NodeProxy, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// Update pumps one tick: posted work, then up to MaxEventsPerTick transport events,
// then the idle service sweep when due. It returns how much work it did.
func (n *Node) Update() int {
	n.mu.Lock()
	posted := n.posted
	n.posted = nil
	n.mu.Unlock()
	for _, fn := range posted {
		fn()
	}

	handled := 0
	for handled < n.cfg.MaxEventsPerTick {
		ev, ok := n.host.Receive()
		if !ok {
			break
		}
		n.handle(ev)
		handled++
	}

	if idle := n.cfg.IdleServiceTimeout; idle > 0 {
		if now := time.Now(); now.Sub(n.lastSweep) >= idle/2 {
			n.lastSweep = now
			if k := n.server.Sweep(now, idle); k > 0 {
				n.log.WithField("count", k).Debug("idle services destroyed")
			}
		}
	}
	return len(posted) + handled
}

// Run pumps until ctx ends, waking on transport events, posted work and every tick.
func (n *Node) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		for n.Update() > 0 {
			if ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.host.Notify():
		case <-n.wake:
		case <-ticker.C:
		}
	}
}

func (n *Node) handle(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		n.connected(ev)
	case transport.EventConnectFailed:
		n.connectFailed(ev)
	case transport.EventDisconnected:
		n.disconnected(ev)
	case transport.EventMessage:
		n.received(ev)
	}
}

func (n *Node) connected(ev transport.Event) {
	p := newNodeProxy(n, ev.Conn)
	n.mu.Lock()
	n.peers[ev.Conn] = p
	var f *future.Future[*NodeProxy]
	if ev.Conn.Outbound() {
		n.sessions[ev.Addr] = p
		f = n.connecting[ev.Addr]
	}
	subs := n.onConnected
	n.mu.Unlock()

	p.log.WithField("outbound", ev.Conn.Outbound()).Info("node connected")
	if f != nil {
		f.Complete(p)
	}
	for _, fn := range subs {
		fn(p)
	}
}

func (n *Node) connectFailed(ev transport.Event) {
	n.mu.Lock()
	f := n.connecting[ev.Addr]
	delete(n.connecting, ev.Addr)
	n.mu.Unlock()

	n.log.WithError(ev.Err).WithField("endpoint", ev.Addr).Warn("connect failed")
	if f != nil {
		f.Fail(errors.Wrap(ErrConnectFailed, ev.Err.Error()))
	}
}

func (n *Node) disconnected(ev transport.Event) {
	n.mu.Lock()
	p, ok := n.peers[ev.Conn]
	if !ok {
		n.mu.Unlock()
		return
	}
	delete(n.peers, ev.Conn)
	if addr := ev.Conn.DialAddr(); ev.Conn.Outbound() && n.sessions[addr] == p {
		delete(n.sessions, addr)
		delete(n.connecting, addr)
	}
	subs := n.onDisconnected
	n.mu.Unlock()

	failed := p.failAll(errors.Wrapf(ErrDisconnected, "%s: %v", p, ev.Err))
	p.log.WithError(ev.Err).WithField("failed", failed).Info("node disconnected")
	for _, fn := range subs {
		fn(p)
	}
}

func (n *Node) received(ev transport.Event) {
	n.mu.Lock()
	p, ok := n.peers[ev.Conn]
	n.mu.Unlock()
	if !ok {
		return
	}

	m, err := n.codecs.Decode(codec.CodecType(ev.Codec), ev.Body)
	if err != nil {
		p.log.WithError(err).Warn("undecodable message dropped")
		return
	}
	n.route(p, m)
}

// route delivers one inbound message: replies complete the caller's pending call,
// requests go to the local service host.
func (n *Node) route(p *NodeProxy, m message.Message) {
	if op, err := message.GetOperationHeader(m); err == nil && op.Type == message.OpReply {
		p.completeRequest(op.RequestID, m)
		return
	}

	octx := &server.OperationContext{Context: n.ctx, Message: m, Source: p, Node: n}
	if err := n.server.Route(octx); err != nil {
		p.log.WithError(err).WithField("msg", m.TypeID()).Warn("message dropped")
	}
}
