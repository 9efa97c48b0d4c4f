package middleware

import (
	"context"
	"time"

	"node-rpc/message"

	"github.com/sirupsen/logrus"
)

// LoggingMiddleware logs every dispatch with its duration at debug level.
func LoggingMiddleware(log *logrus.Entry) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (message.Message, error) {
			start := time.Now()
			reply, err := next(ctx, call)
			entry := log.WithFields(logrus.Fields{
				"service":  call.Service,
				"id":       call.ServiceID,
				"op":       call.Operation.Name,
				"request":  call.RequestID,
				"duration": time.Since(start),
			})
			if err != nil {
				entry.WithError(err).Debug("dispatch failed")
			} else {
				entry.Debug("dispatched")
			}
			return reply, err
		}
	}
}
