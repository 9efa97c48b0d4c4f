// Package middleware wraps the dispatch of an inbound operation.
//
// A chain is built once when the service host is created and runs around every
// dispatch, inside the service's fiber lane:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
package middleware

import (
	"context"

	"node-rpc/message"
	"node-rpc/registry"

	"github.com/pkg/errors"
)

// Call describes one inbound operation on its way to the service implementation.
type Call struct {
	Service   string
	ServiceID uint64
	Operation *registry.OperationDescription
	RequestID int32 // 0 for one-way operations
	Request   message.Message
	Impl      any
}

// HandlerFunc runs a call. One-way operations return a nil reply.
type HandlerFunc func(ctx context.Context, call *Call) (message.Message, error)

type Middleware func(next HandlerFunc) HandlerFunc

var (
	ErrTimeout     = errors.New("middleware: dispatch timed out")
	ErrRateLimited = errors.New("middleware: rate limit exceeded")
	ErrPanic       = errors.New("middleware: dispatch panicked")
)

// Chain combines middlewares into one; the first is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Invoke is the innermost handler: it calls the operation's dispatch func.
func Invoke(ctx context.Context, call *Call) (message.Message, error) {
	return call.Operation.Dispatch(ctx, call.Impl, call.Request)
}
