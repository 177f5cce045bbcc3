package permissions

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// Handlers exposes the resolver to authenticated callers
type Handlers struct {
	resolver *Resolver
}

// NewHandlers creates permission handlers
func NewHandlers(resolver *Resolver) *Handlers {
	return &Handlers{resolver: resolver}
}

// RegisterRoutes registers the caller-facing permission routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/modules", h.ListModules).Methods("GET")
	router.HandleFunc("/modules/{moduleSlug}/access-check", h.AccessCheck).Methods("GET")
	router.HandleFunc("/modules/{moduleSlug}/pages", h.ListPages).Methods("GET")
	router.HandleFunc("/modules/{moduleSlug}/pages/{pageName}/check", h.CheckPage).Methods("GET")
}

// ModuleList is the response of GET /modules
type ModuleList struct {
	Modules []ModulePermissions `json:"modules"`
}

// ListModules handles GET /modules
func (h *Handlers) ListModules(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	modules, err := h.resolver.ListModules(r.Context(), p)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, ModuleList{Modules: modules})
}

// AccessCheck handles GET /modules/{moduleSlug}/access-check
func (h *Handlers) AccessCheck(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	moduleName, ok := httputil.ParsePathStringOrError(w, r, "moduleSlug")
	if !ok {
		return
	}

	result, err := h.resolver.AccessCheck(r.Context(), p, moduleName)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// ListPages handles GET /modules/{moduleSlug}/pages
func (h *Handlers) ListPages(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	moduleName, ok := httputil.ParsePathStringOrError(w, r, "moduleSlug")
	if !ok {
		return
	}

	access, err := h.resolver.ListPages(r.Context(), p, moduleName)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if !access.Decision.Allowed {
		httputil.WriteAppError(w, apperrors.Denied(string(access.Decision.Reason), "module not available"))
		return
	}
	httputil.WriteSuccess(w, access)
}

// CheckPage handles GET /modules/{moduleSlug}/pages/{pageName}/check?action=
func (h *Handlers) CheckPage(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	action, err := ParseAction(httputil.ParseQueryString(r, "action", string(ActionRead)))
	if err != nil {
		httputil.WriteAppError(w, apperrors.InvalidField("action", "must be read, write or delete"))
		return
	}

	d, err := h.resolver.Resolve(r.Context(), p, vars["moduleSlug"], vars["pageName"], action)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (principal.Principal, bool) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		httputil.WriteAppError(w, apperrors.Unauthenticated("authentication required"))
	}
	return p, ok
}
