package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/enums"
)

type contextKey struct{ name string }

var (
	actorKey   = contextKey{"actor"}
	sessionKey = contextKey{"storefront_session"}
)

// Actor is the authenticated caller resolved from the bearer token.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// WithActor stores the caller on ctx. An unknown role degrades to customer.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !actor.Role.IsValid() {
		actor.Role = enums.UserRoleCustomer
	}
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the caller and whether one was authenticated.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || actor.UserID == uuid.Nil {
		return Actor{}, false
	}
	return actor, true
}

// callerKey scopes per-caller state (rate windows, idempotency records).
// Anonymous callers share the empty key unless a fallback is supplied.
func callerKey(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

// SessionFromContext returns the storefront session id sent by the client.
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

func contextWithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}
