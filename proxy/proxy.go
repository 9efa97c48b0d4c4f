// Package proxy is the caller side of a remote service.
//
// Generated proxies embed ServiceProxy. Each proxy method builds a request message,
// ExecuteServiceOperation addresses it to the remote service instance and hands it to
// a Target (normally a connected *node.NodeProxy), which correlates the reply and
// completes the returned future.
//
//	proxy method → ServiceHeader(serviceID) → Target.ExecuteOperation
//	   → OperationHeader(RequestID, Request) → pending[RequestID] → send
//	   ... reply arrives on the node pump → pending.pop(RequestID) → future.Complete
package proxy

import (
	"node-rpc/future"
	"node-rpc/message"
	"node-rpc/registry"

	"github.com/pkg/errors"
)

var (
	ErrNotInitialized  = errors.New("proxy: not initialized")
	ErrUnexpectedReply = errors.New("proxy: unexpected reply type")
)

// Target sends requests to one remote node.
type Target interface {
	// ExecuteOperation sends req and returns a future for its reply.
	ExecuteOperation(req message.Message) *future.Future[message.Message]
	// ExecuteOneWayOperation sends req without expecting a reply.
	ExecuteOneWayOperation(req message.Message) error
}

// Proxy is implemented by every generated proxy.
type Proxy interface {
	ServiceID() uint64
	Contract() *registry.ContractDescription
}

// ServiceProxy addresses one service instance on one remote node.
type ServiceProxy struct {
	serviceID uint64
	contract  *registry.ContractDescription
	target    Target
}

func (p *ServiceProxy) Init(serviceID uint64, contract *registry.ContractDescription, target Target) {
	p.serviceID = serviceID
	p.contract = contract
	p.target = target
}

func (p *ServiceProxy) ServiceID() uint64                       { return p.serviceID }
func (p *ServiceProxy) Contract() *registry.ContractDescription { return p.contract }
func (p *ServiceProxy) Target() Target                          { return p.target }

// ExecuteServiceOperation addresses req to the service and sends it as a request
// expecting a reply.
func (p *ServiceProxy) ExecuteServiceOperation(req message.Message) *future.Future[message.Message] {
	if p.target == nil {
		return future.Failed[message.Message](errors.WithStack(ErrNotInitialized))
	}
	req.AttachHeader(&message.ServiceHeader{ServiceID: p.serviceID})
	return p.target.ExecuteOperation(req)
}

// ExecuteOneWayServiceOperation addresses req to the service and sends it without
// registering a pending reply.
func (p *ServiceProxy) ExecuteOneWayServiceOperation(req message.Message) error {
	if p.target == nil {
		return errors.WithStack(ErrNotInitialized)
	}
	req.AttachHeader(&message.ServiceHeader{ServiceID: p.serviceID})
	return p.target.ExecuteOneWayOperation(req)
}

// Reply narrows a reply future to the concrete reply type T.
func Reply[T message.Message](f *future.Future[message.Message]) *future.Future[T] {
	return future.Map(f, func(m message.Message) (T, error) {
		r, ok := m.(T)
		if !ok {
			var zero T
			return zero, errors.Wrapf(ErrUnexpectedReply, "got %T, want %T", m, zero)
		}
		return r, nil
	})
}
