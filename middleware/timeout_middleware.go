package middleware

import (
	"context"
	"time"

	"node-rpc/message"

	"github.com/pkg/errors"
)

// TimeOutMiddleware gives every dispatch a deadline. The handler is not abandoned: it
// runs to completion inside its fiber slot, and a reply produced after the deadline
// is discarded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			reply, err := next(ctx, call)
			if err != nil {
				return nil, err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.Wrapf(ErrTimeout, "%s after %s", call.Operation.Name, timeout)
			}
			return reply, nil
		}
	}
}
