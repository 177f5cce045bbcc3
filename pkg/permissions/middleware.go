package permissions

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// OrgSlugVar is the route variable naming the tenant of a request
const OrgSlugVar = "orgSlug"

// Middleware guards tenant routes
type Middleware struct {
	resolver *Resolver
	log      *logrus.Logger
}

// NewMiddleware creates permission middleware backed by resolver
func NewMiddleware(resolver *Resolver, log *logrus.Logger) *Middleware {
	if log == nil {
		log = logrus.New()
	}
	return &Middleware{resolver: resolver, log: log}
}

// TenantScope binds the request to the {orgSlug} route variable. Callers
// may only address their own organization; super-admins may address any.
// A mismatch is a plain denial that says nothing about the other tenant.
func (m *Middleware) TenantScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal.FromContext(r.Context())
		if !ok {
			httputil.WriteAppError(w, apperrors.Unauthenticated("authentication required"))
			return
		}

		slug := mux.Vars(r)[OrgSlugVar]
		if !p.IsSuperAdmin {
			if !p.HasOrganization() {
				m.denied(w, r, string(ReasonNoOrganization), slug)
				return
			}
			if p.OrganizationSlug != slug {
				m.denied(w, r, string(ReasonDenied), slug)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(contextkeys.WithTenant(r.Context(), slug)))
	})
}

// Require admits the request only when the principal may perform action on
// the module page
func (m *Middleware) Require(moduleName, pageName string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				httputil.WriteAppError(w, apperrors.Unauthenticated("authentication required"))
				return
			}

			d, err := m.resolver.Resolve(r.Context(), p, moduleName, pageName, action)
			if err != nil {
				m.log.WithError(err).WithFields(logrus.Fields{
					"module": moduleName,
					"page":   pageName,
				}).Error("permission check failed")
				httputil.WriteAppError(w, err)
				return
			}
			if !d.Allowed {
				m.denied(w, r, string(d.Reason), fmt.Sprintf("%s/%s:%s", moduleName, pageName, action))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) denied(w http.ResponseWriter, r *http.Request, reason, resource string) {
	if err := audit.LogDenied(r.Context(), audit.ResourceTypePermission, resource, reason); err != nil {
		m.log.WithError(err).Warn("failed to record access denial")
	}
	httputil.WriteAppError(w, apperrors.Denied(reason, "access denied"))
}
