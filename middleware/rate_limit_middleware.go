package middleware

import (
	"context"

	"node-rpc/message"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware rejects dispatches beyond r per second (token bucket of size burst)
// across all services of the host.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (message.Message, error) {
			if !limiter.Allow() {
				return nil, errors.Wrapf(ErrRateLimited, "%s.%s", call.Service, call.Operation.Name)
			}
			return next(ctx, call)
		}
	}
}
