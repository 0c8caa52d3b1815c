package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/replicore/permcore/internal/adapters/auth"
	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/logger"
)

type authContextKey string

const authKey authContextKey = "permissions_auth"

// AuthMiddleware resolves the request's bearer token (when present) into
// the domain.Auth the permissions service compiles for. A request with
// no Authorization header proceeds as an anonymous session - the
// decision engine's Anyone role exists exactly for that case - while a
// present-but-invalid token is rejected.
type AuthMiddleware struct {
	verifier *auth.Verifier
	logger   logger.Logger
}

// NewAuthMiddleware creates the auth middleware
func NewAuthMiddleware(verifier *auth.Verifier, logger logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// Middleware performs the resolution and stashes the Auth in context.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(SetAuth(r.Context(), domain.Auth{})))
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			WriteJSONError(w, ErrorCodeUnauthorized, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		a, err := m.verifier.VerifyBearer(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				WriteJSONError(w, ErrorCodeTokenExpired, err.Error(), http.StatusUnauthorized)
				return
			}
			m.logger.Warn(r.Context(), "bearer token rejected", "error", err)
			WriteJSONError(w, ErrorCodeInvalidToken, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetAuth(r.Context(), a)))
	})
}

// SetAuth stores the resolved Auth in ctx.
func SetAuth(ctx context.Context, a domain.Auth) context.Context {
	return context.WithValue(ctx, authKey, a)
}

// GetAuth extracts the resolved Auth from ctx.
func GetAuth(ctx context.Context) (domain.Auth, bool) {
	a, ok := ctx.Value(authKey).(domain.Auth)
	return a, ok
}
