package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type requestContextKey struct{}

// WithRequestID attaches an invocation id to the context, minting one if the
// caller supplied none.
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		id = NewRequestID()
	}
	return context.WithValue(ctx, requestContextKey{}, id)
}

// RequestIDFromContext returns the invocation id, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestContextKey{}).(string)
	return id, ok && id != ""
}

func NewRequestID() string {
	return uuid.NewString()
}
