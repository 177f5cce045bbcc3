package principal

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Middleware authenticates requests with a bearer token
type Middleware struct {
	resolver Resolver
	optional bool // If true, allow requests without auth
	log      *logrus.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(resolver Resolver, optional bool, log *logrus.Logger) *Middleware {
	if log == nil {
		log = logrus.New()
	}
	return &Middleware{
		resolver: resolver,
		optional: optional,
		log:      log,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteAppError(w, apperrors.Unauthenticated("missing authorization header"))
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteAppError(w, apperrors.Unauthenticated("invalid authorization header format"))
			return
		}

		p, err := m.resolver.Resolve(r.Context(), parts[1])
		if err != nil {
			m.log.WithField("path", r.URL.Path).Debugf("Token rejected: %v", err)
			httputil.WriteAppError(w, apperrors.Unauthenticated("invalid or expired token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireSuperAdmin rejects requests whose principal is not a super-admin.
// Missing principals are 401, authenticated non-admins are 403.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			httputil.WriteAppError(w, apperrors.Unauthenticated("authentication required"))
			return
		}
		if !p.IsSuperAdmin {
			httputil.WriteAppError(w, apperrors.Denied("Denied", "super-admin privileges required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
