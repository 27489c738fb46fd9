package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	request "srwa/pkg/platform/middleware/request"
	"srwa/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	Subject string
	Role    string
	JTI     string
}

type roleKey struct{}

// Role returns the role of the authenticated operator, or "".
func Role(r *http.Request) string {
	if role, ok := r.Context().Value(roleKey{}).(string); ok {
		return role
	}
	return ""
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and stores the operator in the context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.Subject)
			ctx = context.WithValue(ctx, roleKey{}, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated operators that lack one of roles.
// It must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := Role(r)
			for _, role := range roles {
				if have == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			ctx := r.Context()
			logger.WarnContext(ctx, "forbidden - role not allowed",
				"actor", requestcontext.Actor(ctx),
				"role", have,
				"request_id", request.GetRequestID(ctx),
			)
			writeJSONError(w, http.StatusForbidden, "forbidden", "Operator role not allowed")
		})
	}
}
