package middleware

import (
	"net/http"
	"strings"

	"github.com/waylio/waylio-platform/internal/audit"
	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	ParseAccess(token string) (*identity.Claims, error)
}

// Authenticate requires a valid Bearer access token and stores the caller in
// the request context along with client details for audit rows.
func Authenticate(tokens TokenVerifier, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				respond.Error(w, r, logger, identity.ErrInvalidToken)
				return
			}
			claims, err := tokens.ParseAccess(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				respond.Error(w, r, logger, err)
				return
			}
			ctx := identity.WithCaller(r.Context(), claims.Caller())
			ctx = audit.WithRequestInfo(ctx, clientIP(r), r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers holding none of roles. Must run after Authenticate.
func RequireRole(logger *logging.Logger, roles ...identity.Role) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := identity.CallerFromContext(r.Context())
			if !ok {
				respond.Error(w, r, logger, identity.ErrInvalidToken)
				return
			}
			if !caller.HasRole(roles...) {
				respond.Error(w, r, logger, identity.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
