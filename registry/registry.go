// Package registry holds the immutable tables that describe what a node can host
// and call: contracts (interface types with an ordered operation list), the messages
// those operations exchange, and the services that implement them.
//
// Tables are collected with a Builder and frozen by Build. After Build the Registry
// is read-only and shared by every goroutine without locking.
package registry

import (
	"context"
	"hash/fnv"

	"node-rpc/message"
)

// DispatchFunc invokes one operation on a service implementation. impl is the value
// returned by ServiceDescription.New; req has the operation's request type. One-way
// operations return a nil reply.
type DispatchFunc func(ctx context.Context, impl any, req message.Message) (message.Message, error)

// OperationDescription describes one method of a contract.
type OperationDescription struct {
	Name       string
	RequestID  uint32
	ReplyID    uint32
	HasReply   bool // false ⇒ one-way
	NewRequest func() message.Message
	NewReply   func() message.Message
	Dispatch   DispatchFunc
}

// ContractDescription describes a remotely callable interface.
type ContractDescription struct {
	TypeID     uint32
	Name       string // fully-qualified
	Operations []*OperationDescription

	// AllowExternalConnections admits calls from peers that connected as external
	// clients rather than cluster nodes.
	AllowExternalConnections bool
}

// ID is TypeID, or TypeID(Name) when the contract was declared with TypeID 0.
func (c *ContractDescription) ID() uint32 {
	if c.TypeID != 0 {
		return c.TypeID
	}
	return TypeID(c.Name)
}

// Operation returns the operation whose request message id is msgID.
func (c *ContractDescription) Operation(msgID uint32) (*OperationDescription, bool) {
	for _, op := range c.Operations {
		if op.RequestID == msgID {
			return op, true
		}
	}
	return nil, false
}

// ServiceDescription describes a hostable service type.
type ServiceDescription struct {
	Name       string
	Contract   *ContractDescription
	Persistent bool // instances survive the idle sweep
	AutoCreate bool // instances are created on first addressed request
	New        func() any
}

// TypeID returns the 32-bit FNV-1a hash of a fully-qualified name. It is the id used
// for contracts declared with TypeID 0 and is stable across processes and releases.
func TypeID(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

type opRef struct {
	contract *ContractDescription
	op       *OperationDescription
}

// Registry is the frozen result of Builder.Build.
type Registry struct {
	contracts      []*ContractDescription
	services       []*ServiceDescription
	byID           map[uint32]*ContractDescription
	byName         map[string]*ContractDescription
	byRequest      map[uint32]opRef
	servicesByName map[string]*ServiceDescription
	byContract     map[uint32]*ServiceDescription
	factory        *message.Factory
}

func (r *Registry) Contract(typeID uint32) (*ContractDescription, bool) {
	c, ok := r.byID[typeID]
	return c, ok
}

func (r *Registry) ContractByName(name string) (*ContractDescription, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Operation resolves a request message id to its contract and operation.
func (r *Registry) Operation(requestID uint32) (*ContractDescription, *OperationDescription, bool) {
	ref, ok := r.byRequest[requestID]
	if !ok {
		return nil, nil, false
	}
	return ref.contract, ref.op, true
}

func (r *Registry) Service(name string) (*ServiceDescription, bool) {
	s, ok := r.servicesByName[name]
	return s, ok
}

// ServiceForContract returns the first registered service implementing the contract.
func (r *Registry) ServiceForContract(typeID uint32) (*ServiceDescription, bool) {
	s, ok := r.byContract[typeID]
	return s, ok
}

func (r *Registry) Contracts() []*ContractDescription { return r.contracts }
func (r *Registry) Services() []*ServiceDescription   { return r.services }

// Factory returns the message factory holding every request and reply type.
func (r *Registry) Factory() *message.Factory { return r.factory }
