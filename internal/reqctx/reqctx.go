// Package reqctx carries per-request values (request ID, acting user) through
// context.Context so log records can be tagged without threading them by hand.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

type actorKey struct{}

// NewRequestID generates a random UUID v4 request ID.
func NewRequestID() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns "" if ctx carries no request ID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithActor records the authenticated user for logging. Operations that persist
// the actor still take it as an explicit argument.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func Actor(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string)
	return a
}
