package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"tremolo/internal/moderation"
)

const authUserKey contextKey = "auth-user"

// AuthMiddleware resolves the session token on the request and stores the
// authenticated user id in the context. Requests without a valid session
// pass through unauthenticated; individual operations decide whether
// authentication is required.
func AuthMiddleware(identity moderation.IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := identity.CurrentUser(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("session token did not resolve")
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), authUserKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionToken extracts the session token from the Authorization header or
// the session cookie.
func sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	if c, err := r.Cookie("session_token"); err == nil {
		return c.Value
	}
	return ""
}

// AuthenticatedUser returns the user id resolved by AuthMiddleware, or an
// empty string for anonymous requests.
func AuthenticatedUser(ctx context.Context) string {
	userID, _ := ctx.Value(authUserKey).(string)
	return userID
}

// WithAuthenticatedUser returns a context carrying the given user id, as if
// AuthMiddleware had resolved it.
func WithAuthenticatedUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, authUserKey, userID)
}
