package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxActorID   contextKey = "actor_id"
	ctxActorName contextKey = "actor_name"
)

// ActorIDFromContext returns the authenticated caller, or uuid.Nil outside
// the Auth middleware.
func ActorIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func ActorNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxActorName).(string)
	return v
}

// WithActor seeds the caller identity. Auth uses it; tests use it to skip
// token minting.
func WithActor(ctx context.Context, id uuid.UUID, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, id)
	return context.WithValue(ctx, ctxActorName, name)
}
