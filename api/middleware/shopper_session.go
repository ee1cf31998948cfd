package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// SessionHeader carries the anonymous cart session for API clients.
const SessionHeader = "X-Cart-Session"

// SessionCookie carries the same token for browsers. It is the only form that
// survives the gateway's redirect back to /payments/return.
const SessionCookie = "sf_session"

// ShopperSession resolves the browser's cart session, issuing a fresh one when it is
// missing or expired. The token is echoed in both the header and the cookie. A
// signed-in user keeps the user identity; the session only labels the browser.
func ShopperSession(resolver session.Resolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, err := validSession(ctx, resolver, logg, r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate shopper session"))
				return
			}
			if token == "" {
				if token, err = resolver.Issue(ctx); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue shopper session"))
					return
				}
			}

			w.Header().Set(SessionHeader, token)
			http.SetCookie(w, sessionCookie(r, token))
			next.ServeHTTP(w, r.WithContext(withShopperSession(ctx, logg, token)))
		})
	}
}

// ReadShopperSession attaches an existing valid session and never issues one.
// Lookup failures degrade to an anonymous request.
func ReadShopperSession(resolver session.Resolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, err := validSession(ctx, resolver, logg, r)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "shopper session lookup failed")
				}
				token = ""
			}
			if token != "" {
				ctx = withShopperSession(ctx, logg, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionToken prefers the explicit header over the cookie.
func sessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// validSession returns "" for an absent or expired token.
func validSession(ctx context.Context, resolver session.Resolver, logg *logger.Logger, r *http.Request) (string, error) {
	token := sessionToken(r)
	if token == "" {
		return "", nil
	}
	ok, err := resolver.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		if logg != nil {
			logg.Warn(logg.WithSession(ctx, token), "shopper session expired")
		}
		return "", nil
	}
	return token, nil
}

func withShopperSession(ctx context.Context, logg *logger.Logger, token string) context.Context {
	ctx = WithSession(ctx, token)
	if logg != nil {
		ctx = logg.WithSession(ctx, token)
	}
	return ctx
}

// sessionCookie is Lax so the top-level GET redirect from the payment page carries it.
func sessionCookie(r *http.Request, token string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"),
		SameSite: http.SameSiteLaxMode,
	}
}
