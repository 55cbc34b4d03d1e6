package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// AuthCookieName is the HttpOnly cookie carrying the access token.
const AuthCookieName = "auth_token"

// TokenValidator validates an access token and returns the subject claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims represents the claims we expect from the token validator.
type TokenClaims struct {
	UserID string
}

type contextKeyUserID struct{}
type contextKeyAuthSource struct{}

// Context keys for authenticated request information.
var (
	ContextKeyUserID     = contextKeyUserID{}
	ContextKeyAuthSource = contextKeyAuthSource{}
)

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetAuthSource reports where the credential came from ("cookie" or "header").
func GetAuthSource(ctx context.Context) string {
	src, ok := ctx.Value(ContextKeyAuthSource).(string)
	if !ok {
		return ""
	}
	return src
}

// TokenFromRequest extracts the access token, preferring the auth cookie and
// falling back to a Bearer header. Cross-site clients that cannot send cookies
// use the header path. Returns the token and its source, or "" when absent.
func TokenFromRequest(r *http.Request) (token, source string) {
	if c, err := r.Cookie(AuthCookieName); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	authHeader := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(authHeader, "Bearer "); ok && after != "" {
		return after, "header"
	}
	return "", ""
}

// RequireAuth rejects requests without a valid token and stores the user ID in
// the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, source := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing credentials")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"source", source,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextKeyAuthSource, source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
