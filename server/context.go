package server

import (
	"context"

	"node-rpc/message"
	"node-rpc/proxy"
)

// Channel is the peer a message arrived from. Replies to that message go back on
// it, and service code may use it as a proxy target to call the peer back.
type Channel interface {
	proxy.Target
	Send(m message.Message) error
	// External reports whether the peer connected as an external client.
	External() bool
	RemoteNodeID() uint64
}

// Node is the local node as seen from dispatch code.
type Node interface {
	ID() uint64
	// Post runs fn on the node's pump lane.
	Post(fn func())
}

// OperationContext carries everything a single inbound operation needs. It is built
// per message and handed to the dispatch func inside its context.Context; it is never
// stored on the service instance.
type OperationContext struct {
	Context context.Context
	Message message.Message
	Source  Channel
	Node    Node
}

type operationKey struct{}

// WithOperation returns a copy of ctx carrying octx.
func WithOperation(ctx context.Context, octx *OperationContext) context.Context {
	return context.WithValue(ctx, operationKey{}, octx)
}

// FromContext returns the OperationContext of the operation being dispatched.
func FromContext(ctx context.Context) (*OperationContext, bool) {
	octx, ok := ctx.Value(operationKey{}).(*OperationContext)
	return octx, ok
}
