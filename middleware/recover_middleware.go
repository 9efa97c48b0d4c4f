package middleware

import (
	"context"

	"node-rpc/message"

	"github.com/pkg/errors"
)

// RecoverMiddleware turns a panic in the handler into ErrPanic.
func RecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (reply message.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					reply = nil
					err = errors.Wrapf(ErrPanic, "%s: %v", call.Operation.Name, r)
				}
			}()
			return next(ctx, call)
		}
	}
}
