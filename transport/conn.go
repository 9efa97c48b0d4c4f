package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"node-rpc/message"
	"node-rpc/protocol"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Conn is one handshaked connection to a remote node.
type Conn struct {
	host     *Host
	link     Link
	dgram    DatagramLink // nil when the link has no datagram path
	remote   protocol.Hello
	outbound bool
	dialAddr string
	log      *logrus.Entry

	queue    *sendQueue
	seq      atomic.Uint32 // Per-connection frame sequence, shared by stream and datagram frames
	lastRecv atomic.Int64  // unix nanos of the last frame received

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	err       error
}

func newConn(h *Host, link Link, remote protocol.Hello, outbound bool, dialAddr string) *Conn {
	ctx, cancel := context.WithCancel(h.ctx)
	c := &Conn{
		host:     h,
		link:     link,
		remote:   remote,
		outbound: outbound,
		dialAddr: dialAddr,
		queue:    newSendQueue(h.cfg.SendQueueLimit),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	if dl, ok := link.(DatagramLink); ok {
		c.dgram = dl
	}
	c.log = h.log.WithFields(logrus.Fields{
		"peer":   link.RemoteAddr().String(),
		"remote": remote.NodeID,
	})
	c.lastRecv.Store(time.Now().UnixNano())
	return c
}

func (c *Conn) start() {
	n := 3
	if c.dgram != nil {
		n++
	}
	c.host.wg.Add(n)
	if c.dgram != nil {
		go c.datagramLoop()
	}
	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()
}

func (c *Conn) RemoteNodeID() uint64  { return c.remote.NodeID }
func (c *Conn) External() bool        { return c.remote.External() }
func (c *Conn) Outbound() bool        { return c.outbound }
func (c *Conn) DialAddr() string      { return c.dialAddr }
func (c *Conn) LocalAddr() net.Addr   { return c.link.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr  { return c.link.RemoteAddr() }
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Send queues one encoded message. It never blocks on the network.
//
// Unreliable messages go out as datagrams when the link has a datagram path and
// are silently dropped when the send queue is full. Everything else is written to
// the stream in priority order, except that ReliableOrdered messages never overtake
// each other. A full queue is reported as ErrQueueFull.
func (c *Conn) Send(body []byte, codec byte, rel message.Reliability, prio message.Priority) error {
	if c.closing.Load() {
		return errors.WithStack(ErrClosed)
	}
	frame := protocol.Marshal(&protocol.Header{
		CodecType: codec,
		FrameType: protocol.FrameMessage,
		Seq:       c.seq.Add(1),
	}, body)

	if rel == message.Unreliable && c.dgram != nil {
		err := c.dgram.SendDatagram(frame)
		if err == nil {
			return nil
		}
		c.log.WithError(err).Debug("datagram refused, using stream")
	}

	var err error
	if rel == message.ReliableOrdered {
		err = c.queue.pushOrdered(prio, frame)
	} else {
		err = c.queue.push(prio, frame)
	}
	if err != nil && rel == message.Unreliable && errors.Is(err, ErrQueueFull) {
		c.log.Debug("unreliable frame dropped")
		return nil
	}
	return err
}

// Close says Goodbye after the frames already queued and then closes the link.
// The link is closed anyway once the host's close timeout elapses.
func (c *Conn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	bye := protocol.Marshal(&protocol.Header{FrameType: protocol.FrameGoodbye, Seq: c.seq.Add(1)}, nil)
	if err := c.queue.pushForce(message.Low, bye); err != nil {
		c.shutdown(errors.WithStack(ErrClosed))
		return nil
	}
	c.queue.close()
	time.AfterFunc(c.host.cfg.CloseTimeout, func() { c.shutdown(errors.WithStack(ErrClosed)) })
	return nil
}

// shutdown tears the connection down once and reports EventDisconnected.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.err = cause
		close(c.done)
		c.cancel()
		c.queue.close()
		_ = c.link.Close()
		c.host.removeConn(c)
		c.log.WithError(cause).Info("connection closed")
		c.host.push(Event{Kind: EventDisconnected, Conn: c, Err: cause})
	})
}

func (c *Conn) readLoop() {
	defer c.host.wg.Done()
	for {
		hdr, body, err := protocol.Decode(c.link)
		if err != nil {
			c.shutdown(errors.Wrap(err, "read"))
			return
		}
		c.lastRecv.Store(time.Now().UnixNano())

		switch hdr.FrameType {
		case protocol.FrameMessage:
			c.host.push(Event{Kind: EventMessage, Conn: c, Codec: hdr.CodecType, Body: body})
		case protocol.FrameHeartbeat:
		case protocol.FrameGoodbye:
			c.shutdown(errors.WithStack(ErrRemoteGoodbye))
			return
		default:
			c.log.WithField("frame", hdr.FrameType).Warn("unexpected frame after handshake")
		}
	}
}

func (c *Conn) datagramLoop() {
	defer c.host.wg.Done()
	var window replayWindow
	for {
		b, err := c.dgram.ReceiveDatagram(c.ctx)
		if err != nil {
			return
		}
		hdr, body, err := protocol.Unmarshal(b)
		if err != nil {
			c.log.WithError(err).Warn("bad datagram")
			continue
		}
		if hdr.FrameType != protocol.FrameMessage {
			continue
		}
		if !window.accept(hdr.Seq) {
			c.log.WithField("seq", hdr.Seq).Debug("replayed datagram dropped")
			continue
		}
		c.lastRecv.Store(time.Now().UnixNano())
		c.host.push(Event{Kind: EventMessage, Conn: c, Codec: hdr.CodecType, Body: body})
	}
}

func (c *Conn) writeLoop() {
	defer c.host.wg.Done()
	for {
		frame, ok := c.queue.pop(c.done)
		if !ok {
			return
		}
		if _, err := c.link.Write(frame); err != nil {
			c.shutdown(errors.Wrap(err, "write"))
			return
		}
		if protocol.FrameType(frame[5]) == protocol.FrameGoodbye {
			c.shutdown(errors.WithStack(ErrClosed))
			return
		}
	}
}

func (c *Conn) heartbeatLoop() {
	defer c.host.wg.Done()
	ticker := time.NewTicker(c.host.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, c.lastRecv.Load()))
			if dead := c.host.cfg.DeadAfter; dead > 0 && idle > dead {
				c.shutdown(errors.Wrapf(ErrPeerDead, "silent for %s", idle.Round(time.Millisecond)))
				return
			}
			hb := protocol.Marshal(&protocol.Header{FrameType: protocol.FrameHeartbeat, Seq: c.seq.Add(1)}, nil)
			_ = c.queue.push(message.High, hb)
		}
	}
}
