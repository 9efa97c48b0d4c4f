package transport

import (
	"context"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"node-rpc/protocol"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// Config tunes a Host. Zero fields take the defaults below.
type Config struct {
	NodeID   uint64
	External bool // announce this host as an external client, not a cluster node

	HeartbeatInterval time.Duration
	DeadAfter         time.Duration // no frame for this long ⇒ peer is dead
	HandshakeTimeout  time.Duration
	CloseTimeout      time.Duration // how long Close waits for queued frames to drain

	DialAttempts int
	DialBackoff  time.Duration // first retry delay, doubled per attempt

	SendQueueLimit int // frames per priority level
}

const (
	DefaultHeartbeatInterval = time.Second
	DefaultDeadAfter         = 5 * time.Second
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultCloseTimeout      = time.Second
	DefaultDialAttempts      = 3
	DefaultDialBackoff       = 200 * time.Millisecond
	DefaultSendQueueLimit    = 1024

	maxDialBackoff = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.DeadAfter == 0 {
		c.DeadAfter = DefaultDeadAfter
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = DefaultDialAttempts
	}
	if c.DialBackoff <= 0 {
		c.DialBackoff = DefaultDialBackoff
	}
	if c.SendQueueLimit <= 0 {
		c.SendQueueLimit = DefaultSendQueueLimit
	}
	return c
}

// Host owns the listener and every connection of one node.
//
// Everything observable about the connections is appended to a single event queue.
// Receive pops from it without blocking; Notify signals that it became non-empty.
type Host struct {
	network Network
	cfg     Config
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       deadlock.Mutex
	listener Listener
	conns    map[*Conn]struct{}
	events   []Event
	closed   bool

	notify chan struct{}
	wg     sync.WaitGroup
}

func NewHost(network Network, cfg Config, log *logrus.Entry) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		network: network,
		cfg:     cfg.withDefaults(),
		log:     log.WithField("component", "transport"),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[*Conn]struct{}),
		notify:  make(chan struct{}, 1),
	}
}

func (h *Host) NodeID() uint64 { return h.cfg.NodeID }

// Listen starts accepting inbound connections on addr.
func (h *Host) Listen(addr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.WithStack(ErrHostClosed)
	}
	if h.listener != nil {
		return errors.Wrapf(ErrAlreadyListening, "on %s", h.listener.Addr())
	}
	l, err := h.network.Listen(addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	h.listener = l
	h.wg.Add(1)
	go h.acceptLoop(l)
	h.log.WithField("addr", l.Addr().String()).Info("listening")
	return nil
}

// Addr is the bound listen address, or nil when not listening.
func (h *Host) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Connect dials addr in the background. The outcome arrives as EventConnected or
// EventConnectFailed carrying the same Addr.
func (h *Host) Connect(addr string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.push(Event{Kind: EventConnectFailed, Addr: addr, Err: errors.WithStack(ErrHostClosed)})
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	go h.dialLoop(addr)
}

func (h *Host) dialLoop(addr string) {
	defer h.wg.Done()
	log := h.log.WithField("addr", addr)
	backoff := h.cfg.DialBackoff

	var lastErr error
	for attempt := 1; attempt <= h.cfg.DialAttempts; attempt++ {
		link, err := h.network.Dial(h.ctx, addr)
		if err == nil {
			var remote protocol.Hello
			if remote, err = h.handshakeOutbound(link); err == nil {
				if err = h.register(link, remote, true, addr); err == nil {
					return
				}
			}
			_ = link.Close()
		}
		lastErr = err
		if h.ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("dial failed")
		if attempt == h.cfg.DialAttempts {
			break
		}

		select {
		case <-h.ctx.Done():
		case <-time.After(withJitter(backoff)):
		}
		if backoff *= 2; backoff > maxDialBackoff {
			backoff = maxDialBackoff
		}
	}
	if h.ctx.Err() != nil {
		lastErr = errors.WithStack(ErrHostClosed)
	}
	h.push(Event{Kind: EventConnectFailed, Addr: addr, Err: errors.Wrapf(lastErr, "connect %s", addr)})
}

// withJitter adds up to half of d at random so that peers restarting together do
// not redial in lockstep.
func withJitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(d/2)))
}

func (h *Host) acceptLoop(l Listener) {
	defer h.wg.Done()
	for {
		link, err := l.Accept()
		if err != nil {
			if h.ctx.Err() == nil {
				h.log.WithError(err).Error("accept failed, listener stopped")
			}
			return
		}
		h.wg.Add(1)
		go h.serveInbound(link)
	}
}

func (h *Host) serveInbound(link Link) {
	defer h.wg.Done()
	remote, err := h.handshakeInbound(link)
	if err == nil {
		err = h.register(link, remote, false, "")
	}
	if err != nil {
		h.log.WithError(err).WithField("peer", link.RemoteAddr().String()).Warn("inbound handshake failed")
		_ = link.Close()
	}
}

func (h *Host) hello() protocol.Hello {
	hello := protocol.Hello{NodeID: h.cfg.NodeID}
	if h.cfg.External {
		hello.Flags |= protocol.FlagExternal
	}
	return hello
}

// The dialer sends Hello and waits for HelloAck.
func (h *Host) handshakeOutbound(link Link) (protocol.Hello, error) {
	return h.handshake(link, func() (protocol.Hello, error) {
		if err := protocol.Encode(link, &protocol.Header{FrameType: protocol.FrameHello}, h.hello().Marshal()); err != nil {
			return protocol.Hello{}, err
		}
		return readHello(link, protocol.FrameHelloAck)
	})
}

// The listener waits for Hello and answers HelloAck.
func (h *Host) handshakeInbound(link Link) (protocol.Hello, error) {
	return h.handshake(link, func() (protocol.Hello, error) {
		remote, err := readHello(link, protocol.FrameHello)
		if err != nil {
			return protocol.Hello{}, err
		}
		if err := protocol.Encode(link, &protocol.Header{FrameType: protocol.FrameHelloAck}, h.hello().Marshal()); err != nil {
			return protocol.Hello{}, err
		}
		return remote, nil
	})
}

// handshake runs exchange with the handshake timeout. The link is closed when the
// timeout fires so that a blocked read returns.
func (h *Host) handshake(link Link, exchange func() (protocol.Hello, error)) (protocol.Hello, error) {
	timer := time.AfterFunc(h.cfg.HandshakeTimeout, func() { _ = link.Close() })
	remote, err := exchange()
	if !timer.Stop() {
		return protocol.Hello{}, errors.Wrapf(ErrHandshake, "timed out after %s", h.cfg.HandshakeTimeout)
	}
	if err != nil {
		return protocol.Hello{}, errors.Wrap(ErrHandshake, err.Error())
	}
	return remote, nil
}

func readHello(link Link, want protocol.FrameType) (protocol.Hello, error) {
	hdr, body, err := protocol.Decode(link)
	if err != nil {
		return protocol.Hello{}, err
	}
	if hdr.FrameType != want {
		return protocol.Hello{}, errors.Errorf("expected %s, got %s", want, hdr.FrameType)
	}
	return protocol.UnmarshalHello(body)
}

// register publishes a handshaked link. EventConnected is queued before the
// connection's loops start, so it always precedes that connection's messages.
func (h *Host) register(link Link, remote protocol.Hello, outbound bool, addr string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.WithStack(ErrHostClosed)
	}
	c := newConn(h, link, remote, outbound, addr)
	h.conns[c] = struct{}{}
	h.events = append(h.events, Event{Kind: EventConnected, Conn: c, Addr: addr})
	h.mu.Unlock()
	h.signal()

	c.log.WithField("outbound", outbound).Info("connection established")
	c.start()
	return nil
}

func (h *Host) removeConn(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Host) push(ev Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	h.signal()
}

func (h *Host) signal() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Receive pops the oldest event. It never blocks.
func (h *Host) Receive() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return Event{}, false
	}
	ev := h.events[0]
	h.events[0] = Event{}
	h.events = h.events[1:]
	return ev, true
}

// Notify receives a value after events were queued. Check Receive until it reports
// false before waiting on Notify again.
func (h *Host) Notify() <-chan struct{} { return h.notify }

// Len reports the number of open connections.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close stops listening and dialing, closes every connection and waits for all
// transport goroutines. Disconnect events stay queued for the consumer.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	l := h.listener
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.cancel()
	var err error
	if l != nil {
		err = l.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
	h.wg.Wait()
	return err
}
