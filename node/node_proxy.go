package node

import (
	"fmt"
	"net"
	"reflect"
	"sync/atomic"

	"node-rpc/future"
	"node-rpc/message"
	"node-rpc/proxy"
	"node-rpc/transport"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// NodeProxy is one connected remote node.
//
// It is the proxy.Target of every service proxy bound to that node and the
// server.Channel that replies to its requests go back on. Callers may issue
// operations from any goroutine; replies are matched on the node pump.
type NodeProxy struct {
	node *Node
	conn *transport.Conn
	log  *logrus.Entry

	lastID atomic.Int32

	mu      deadlock.Mutex
	pending map[int32]*future.Future[message.Message]
	proxies map[proxyKey]proxy.Proxy
	closed  bool
}

type proxyKey struct {
	typ       reflect.Type
	serviceID uint64
}

func newNodeProxy(n *Node, conn *transport.Conn) *NodeProxy {
	return &NodeProxy{
		node: n,
		conn: conn,
		log: n.log.WithFields(logrus.Fields{
			"peer":   conn.RemoteAddr().String(),
			"remote": conn.RemoteNodeID(),
		}),
		pending: make(map[int32]*future.Future[message.Message]),
		proxies: make(map[proxyKey]proxy.Proxy),
	}
}

func (p *NodeProxy) String() string {
	return fmt.Sprintf("NodeProxy<%d@%s>", p.conn.RemoteNodeID(), p.conn.RemoteAddr())
}

func (p *NodeProxy) RemoteNodeID() uint64 { return p.conn.RemoteNodeID() }
func (p *NodeProxy) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }
func (p *NodeProxy) LocalAddr() net.Addr  { return p.conn.LocalAddr() }
func (p *NodeProxy) External() bool       { return p.conn.External() }

// Outbound reports whether this node dialed the session.
func (p *NodeProxy) Outbound() bool { return p.conn.Outbound() }

// Send encodes m with the node's codec and queues it on the connection.
func (p *NodeProxy) Send(m message.Message) error {
	body, err := p.node.codec.Encode(m)
	if err != nil {
		return errors.Wrapf(err, "encode message %d", m.TypeID())
	}
	if err := p.conn.Send(body, byte(p.node.codec.Type()), m.Reliability(), m.Priority()); err != nil {
		return errors.Wrapf(err, "send message %d", m.TypeID())
	}
	p.log.WithFields(logrus.Fields{"msg": m.TypeID(), "len": len(body)}).Debug("sent")
	return nil
}

// ExecuteOperation tags req with a fresh RequestID, registers it as pending and sends
// it. The returned future completes with the reply, or fails with ErrDisconnected
// when the session ends first.
func (p *NodeProxy) ExecuteOperation(req message.Message) *future.Future[message.Message] {
	id := p.lastID.Add(1)
	req.AttachHeader(&message.OperationHeader{RequestID: id, Type: message.OpRequest})

	f := future.New[message.Message]()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.Fail(errors.Wrapf(ErrDisconnected, "%s", p))
		return f
	}
	p.pending[id] = f
	p.mu.Unlock()
	f.OnRelease(func() { p.release(id, f) })

	if err := p.Send(req); err != nil {
		p.release(id, f)
		f.Fail(err)
	}
	return f
}

// ExecuteOneWayOperation sends req without registering a pending reply.
func (p *NodeProxy) ExecuteOneWayOperation(req message.Message) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.Wrapf(ErrDisconnected, "%s", p)
	}
	return p.Send(req)
}

func (p *NodeProxy) release(id int32, f *future.Future[message.Message]) {
	p.mu.Lock()
	if p.pending[id] == f {
		delete(p.pending, id)
	}
	p.mu.Unlock()
}

// completeRequest resolves the pending call id with reply. Unknown ids (late,
// duplicated or abandoned) are dropped.
func (p *NodeProxy) completeRequest(id int32, reply message.Message) bool {
	p.mu.Lock()
	f, ok := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()
	if !ok {
		p.log.WithField("request", id).Debug("reply for unknown request dropped")
		return false
	}
	return f.Complete(reply)
}

// failAll fails every pending call and refuses new ones.
func (p *NodeProxy) failAll(err error) int {
	p.mu.Lock()
	p.closed = true
	pending := p.pending
	p.pending = make(map[int32]*future.Future[message.Message])
	p.mu.Unlock()

	for _, f := range pending {
		f.Fail(err)
	}
	return len(pending)
}

// Pending is the number of calls still waiting for a reply.
func (p *NodeProxy) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close ends the session. Disconnect handling runs on the node pump as usual.
func (p *NodeProxy) Close() error { return p.conn.Close() }

// GetProxy returns the proxy for serviceID on this node, building it with newProxy
// the first time. Proxies are cached per proxy type and service id.
func GetProxy[P proxy.Proxy](np *NodeProxy, serviceID uint64, newProxy func(proxy.Target, uint64) P) P {
	key := proxyKey{typ: reflect.TypeFor[P](), serviceID: serviceID}

	np.mu.Lock()
	defer np.mu.Unlock()
	if cached, ok := np.proxies[key].(P); ok {
		return cached
	}
	fresh := newProxy(np, serviceID)
	np.proxies[key] = fresh
	return fresh
}
