// Package requestctx provides request-scoped values (e.g. request_id) set by middleware.
package requestctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

var requestIDKey = &contextKey{}

// NewRequestID generates a correlation ID for one inbound request or
// ingestion cycle.
func NewRequestID() string {
	return "req_" + uuid.NewString()[:8]
}

// SetRequestID stores request_id in the context.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request_id from context, or "" if not set.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
