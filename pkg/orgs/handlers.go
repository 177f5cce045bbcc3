package orgs

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// Handlers provides the organization admin API
type Handlers struct {
	service *Service
}

// NewHandlers creates organization admin handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the organization admin routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/organizations", h.createOrganization).Methods("POST")
	router.HandleFunc("/admin/organizations", h.listOrganizations).Methods("GET")
	router.HandleFunc("/admin/organizations/{orgId}", h.getOrganization).Methods("GET")
	router.HandleFunc("/admin/organizations/{orgId}", h.deleteOrganization).Methods("DELETE")
	router.HandleFunc("/admin/organizations/{orgId}/deactivate", h.deactivateOrganization).Methods("POST")
}

// createOrganization handles POST /admin/organizations
func (h *Handlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.service.CreateOrganization(r.Context(), actor(r), req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteCreated(w, result)
}

// listOrganizations handles GET /admin/organizations
func (h *Handlers) listOrganizations(w http.ResponseWriter, r *http.Request) {
	includeInactive := httputil.ParseQueryString(r, "include_inactive", "true") != "false"

	list, err := h.service.ListOrganizations(r.Context(), includeInactive)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if list == nil {
		list = []*Organization{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organizations": list})
}

// getOrganization handles GET /admin/organizations/{orgId}
func (h *Handlers) getOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// deactivateOrganization handles POST /admin/organizations/{orgId}/deactivate
func (h *Handlers) deactivateOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	org, err := h.service.DeactivateOrganization(r.Context(), actor(r), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// deleteOrganization handles DELETE /admin/organizations/{orgId}
func (h *Handlers) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "orgId")
	if !ok {
		return
	}
	if err := h.service.DeleteOrganization(r.Context(), actor(r), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func actor(r *http.Request) *string {
	if p, ok := principal.FromContext(r.Context()); ok {
		return p.ActorID()
	}
	return nil
}
