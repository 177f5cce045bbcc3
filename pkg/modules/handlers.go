package modules

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// Handlers exposes the lifecycle manager on the admin API. Routes must be
// mounted behind principal.RequireSuperAdmin.
type Handlers struct {
	manager *Manager
}

// NewHandlers creates module admin handlers
func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes registers the module admin routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Module registry
	router.HandleFunc("/admin/modules", h.RegisterModule).Methods("POST")
	router.HandleFunc("/admin/modules", h.ListModules).Methods("GET")
	router.HandleFunc("/admin/modules/{id}", h.DeleteModule).Methods("DELETE")
	router.HandleFunc("/admin/modules/{id}/toggle", h.ToggleModule).Methods("PATCH")
	router.HandleFunc("/admin/modules/{id}/pages", h.AddPages).Methods("POST")

	// Organization assignments
	router.HandleFunc("/admin/organizations/{orgId}/modules", h.ListOrganizationModules).Methods("GET")
	router.HandleFunc("/admin/organizations/{orgId}/modules", h.ReplaceOrganizationModules).Methods("PUT")
	router.HandleFunc("/admin/organizations/{orgId}/modules/{id}/enable", h.EnableModule).Methods("POST")
	router.HandleFunc("/admin/organizations/{orgId}/modules/{id}/disable", h.DisableModule).Methods("POST")

	// Page grants
	router.HandleFunc("/admin/organizations/{orgId}/module-pages", h.SetOrganizationPageGrant).Methods("POST")
	router.HandleFunc("/admin/organizations/{orgId}/module-pages", h.ListOrganizationPageGrants).Methods("GET")
	router.HandleFunc("/admin/users/{userId}/module-pages/{pageId}", h.SetUserOverride).Methods("PUT")
	router.HandleFunc("/admin/users/{userId}/module-pages/{pageId}", h.RevokeUserOverride).Methods("DELETE")
}

// RegisterModule handles POST /admin/modules
func (h *Handlers) RegisterModule(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	created, err := h.manager.RegisterModule(r.Context(), actor(r), req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// ListModules handles GET /admin/modules
func (h *Handlers) ListModules(w http.ResponseWriter, r *http.Request) {
	mods, err := h.manager.ListModules(r.Context())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if mods == nil {
		mods = []Module{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"modules": mods})
}

// DeleteModule handles DELETE /admin/modules/{id}
func (h *Handlers) DeleteModule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.manager.DeleteModule(r.Context(), actor(r), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ToggleModule handles PATCH /admin/modules/{id}/toggle
func (h *Handlers) ToggleModule(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		httputil.WriteAppError(w, apperrors.InvalidField("isActive", "is required"))
		return
	}

	mod, err := h.manager.ToggleModuleActive(r.Context(), actor(r), id, *req.IsActive)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, mod)
}

// AddPages handles POST /admin/modules/{id}/pages
func (h *Handlers) AddPages(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Pages []PageDef `json:"pages"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	pages, err := h.manager.AddPages(r.Context(), actor(r), id, req.Pages)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]interface{}{"pages": pages})
}

// ListOrganizationModules handles GET /admin/organizations/{orgId}/modules
func (h *Handlers) ListOrganizationModules(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	assignments, err := h.manager.OrganizationModules(r.Context(), orgID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	writeAssignments(w, assignments)
}

// ReplaceOrganizationModules handles PUT /admin/organizations/{orgId}/modules
func (h *Handlers) ReplaceOrganizationModules(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	var req struct {
		ModuleIDs []string `json:"moduleIds"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	assignments, err := h.manager.ReplaceOrganizationModules(r.Context(), actor(r), orgID, req.ModuleIDs)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	writeAssignments(w, assignments)
}

// EnableModule handles POST /admin/organizations/{orgId}/modules/{id}/enable
func (h *Handlers) EnableModule(w http.ResponseWriter, r *http.Request) {
	orgID, moduleID, ok := orgAndModule(w, r)
	if !ok {
		return
	}
	if err := h.manager.EnableModuleForOrganization(r.Context(), actor(r), orgID, moduleID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DisableModule handles POST /admin/organizations/{orgId}/modules/{id}/disable
func (h *Handlers) DisableModule(w http.ResponseWriter, r *http.Request) {
	orgID, moduleID, ok := orgAndModule(w, r)
	if !ok {
		return
	}
	if err := h.manager.DisableModuleForOrganization(r.Context(), actor(r), orgID, moduleID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// SetOrganizationPageGrant handles POST /admin/organizations/{orgId}/module-pages
func (h *Handlers) SetOrganizationPageGrant(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	var grant PageGrant
	if !httputil.ParseJSONOrError(w, r, &grant) {
		return
	}
	if !httputil.RequireNonEmpty(w, grant.ModulePageID, "modulePageId") {
		return
	}

	if err := h.manager.SetOrganizationPagePermissions(r.Context(), actor(r), orgID, []PageGrant{grant}); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, grant)
}

// ListOrganizationPageGrants handles GET /admin/organizations/{orgId}/module-pages
func (h *Handlers) ListOrganizationPageGrants(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	grants, err := h.manager.OrganizationPageGrants(r.Context(), orgID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if grants == nil {
		grants = []OrganizationPageGrant{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": grants})
}

// SetUserOverride handles PUT /admin/users/{userId}/module-pages/{pageId}
func (h *Handlers) SetUserOverride(w http.ResponseWriter, r *http.Request) {
	userID, pageID, ok := userAndPage(w, r)
	if !ok {
		return
	}
	var o permissions.Override
	if !httputil.ParseJSONOrError(w, r, &o) {
		return
	}

	if err := h.manager.SetUserPagePermission(r.Context(), actor(r), userID, pageID, o); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, o)
}

// RevokeUserOverride handles DELETE /admin/users/{userId}/module-pages/{pageId}
func (h *Handlers) RevokeUserOverride(w http.ResponseWriter, r *http.Request) {
	userID, pageID, ok := userAndPage(w, r)
	if !ok {
		return
	}
	if err := h.manager.RevokeUserPagePermission(r.Context(), actor(r), userID, pageID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func writeAssignments(w http.ResponseWriter, assignments []Assignment) {
	if assignments == nil {
		assignments = []Assignment{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"modules": assignments})
}

func orgAndModule(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return "", "", false
	}
	moduleID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	return orgID, moduleID, ok
}

func userAndPage(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return "", "", false
	}
	pageID, ok := httputil.ParsePathUUIDOrError(w, r, "pageId")
	return userID, pageID, ok
}

func actor(r *http.Request) *string {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		return nil
	}
	return p.ActorID()
}
