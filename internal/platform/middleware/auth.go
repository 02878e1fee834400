package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	MemberID string
}

type contextKeyMemberID struct{}

// GetMemberID retrieves the authenticated member ID from the context.
func GetMemberID(ctx context.Context) string {
	id, ok := ctx.Value(contextKeyMemberID{}).(string)
	if !ok {
		return ""
	}
	return id
}

// WithMemberID is exposed for handler tests that bypass RequireAuth.
func WithMemberID(ctx context.Context, memberID string) context.Context {
	return context.WithValue(ctx, contextKeyMemberID{}, memberID)
}

// RequireAuth guards the read-side query API. It only identifies the caller;
// authorization (may this member see that subtree) stays in the services.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, r, logger, "missing or malformed Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access, invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, r, logger, "invalid or expired token")
				return
			}

			ctx := WithMemberID(r.Context(), claims.MemberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireEventToken guards inbound boundary events with the shared secret the
// registration and payout services hold.
func RequireEventToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Event-Token") != token {
				unauthorized(w, r, logger, "invalid event token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response",
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
	}
}
