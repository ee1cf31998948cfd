package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/shopper"
)

type contextKey string

const (
	ctxUserID     contextKey = "user_id"
	ctxSessionKey contextKey = "shopper_session"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithSession injects the anonymous shopper session into the context.
func WithSession(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionKey, token)
}

// IdentityFromContext resolves the shopper. A signed-in user always wins over a cart session.
func IdentityFromContext(ctx context.Context) shopper.Identity {
	if raw := UserIDFromContext(ctx); raw != "" {
		if id, err := uuid.Parse(raw); err == nil && id != uuid.Nil {
			identity := shopper.ForUser(id)
			identity.Browser = SessionFromContext(ctx)
			return identity
		}
	}
	if token := SessionFromContext(ctx); token != "" {
		return shopper.ForSession(token)
	}
	return shopper.Identity{}
}
