package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	jwttoken "bizreg/internal/jwt_token"
	request "bizreg/pkg/platform/middleware/request"
)

// StaticTokenActor identifies callers authenticated with X-Admin-Token.
const StaticTokenActor = "admin-token"

type contextKeyActor struct{}

// WithActor stores the authenticated admin identity in ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, contextKeyActor{}, actor)
}

// GetActor returns the admin identity set by RequireAdmin, or "".
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(contextKeyActor{}).(string); ok {
		return actor
	}
	return ""
}

// TokenValidator validates admin bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireAdmin accepts either the static X-Admin-Token or a bearer JWT whose
// scope includes requiredScope. An empty expectedToken disables the static
// token; a nil validator disables bearer tokens. With both disabled every
// request is rejected.
func RequireAdmin(expectedToken string, validator TokenValidator, requiredScope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			if token := r.Header.Get("X-Admin-Token"); token != "" && expectedToken != "" {
				// Use constant-time comparison to prevent timing attacks
				if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1 {
					next.ServeHTTP(w, r.WithContext(WithActor(ctx, StaticTokenActor)))
					return
				}
				logger.WarnContext(ctx, "admin token mismatch", "request_id", requestID)
				unauthorized(w, "admin token required")
				return
			}

			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && validator != nil {
				claims, err := validator.ValidateToken(bearer)
				if err != nil {
					logger.WarnContext(ctx, "admin bearer token rejected", "request_id", requestID, "error", err)
					unauthorized(w, "invalid or expired token")
					return
				}
				if !claims.HasScope(requiredScope) {
					logger.WarnContext(ctx, "admin bearer token lacks scope",
						"request_id", requestID,
						"subject", claims.Subject,
						"required_scope", requiredScope,
					)
					forbidden(w, "insufficient scope")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithActor(ctx, claims.Subject)))
				return
			}

			logger.WarnContext(ctx, "admin credentials missing", "request_id", requestID)
			unauthorized(w, "admin token required")
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

func forbidden(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"` + description + `"}`))
}
