package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"citywalk/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	Subject string
	Roles   []string
	JTI     string
}

// HasRole reports whether the token carries role.
func (c *JWTClaims) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

type contextKeyClaims struct{}

// GetClaims retrieves the validated token claims from the context.
func GetClaims(ctx context.Context) *JWTClaims {
	claims, ok := ctx.Value(contextKeyClaims{}).(*JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims injects claims into a context.
// Useful for handler tests that don't run the full middleware chain.
func WithClaims(ctx context.Context, claims *JWTClaims) context.Context {
	ctx = context.WithValue(ctx, contextKeyClaims{}, claims)
	return requestcontext.WithActorID(ctx, claims.Subject)
}

func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeAuthError(ctx, w, logger, http.StatusUnauthorized,
					`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeAuthError(ctx, w, logger, http.StatusUnauthorized,
					`{"error":"unauthorized","error_description":"Invalid or expired token"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !GetClaims(ctx).HasRole(role) {
				logger.WarnContext(ctx, "forbidden - missing role",
					"role", role,
					"actor_id", requestcontext.ActorID(ctx),
					"request_id", GetRequestID(ctx),
				)
				writeAuthError(ctx, w, logger, http.StatusForbidden,
					`{"error":"forbidden","error_description":"Insufficient role"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.ErrorContext(ctx, "failed to write auth error response",
			"error", err,
			"request_id", GetRequestID(ctx),
		)
	}
}
