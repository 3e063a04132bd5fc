// ABOUTME: Request context plumbing for the authenticated actor
// ABOUTME: Provides WithActor/FromContext for propagating identity via context

package auth

import (
	"context"

	"github.com/loomcrm/whatsapp-gateway/internal/store"
)

// actorContextKey is the key type for storing the actor in context.Context.
type actorContextKey struct{}

// WithActor returns a new context with the actor attached.
func WithActor(ctx context.Context, actor *store.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext retrieves the actor from the context, returning nil if not present.
func FromContext(ctx context.Context) *store.Actor {
	val := ctx.Value(actorContextKey{})
	if val == nil {
		return nil
	}
	actor, ok := val.(*store.Actor)
	if !ok {
		return nil
	}
	return actor
}

// MustFromContext retrieves the actor from the context, panicking if not present.
// Only for handlers behind the auth middleware.
func MustFromContext(ctx context.Context) *store.Actor {
	actor := FromContext(ctx)
	if actor == nil {
		panic("auth: actor not found in context")
	}
	return actor
}
