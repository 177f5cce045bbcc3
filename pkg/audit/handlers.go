package audit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	store Searcher
}

// NewHandlers creates new audit handlers
func NewHandlers(store Searcher) *Handlers {
	return &Handlers{
		store: store,
	}
}

// RegisterRoutes registers the audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/audit-logs", h.listEvents).Methods("GET")
}

// listEvents handles GET /admin/audit-logs
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// parseFilter parses a search filter from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	query := r.URL.Query()
	filter := SearchFilter{}

	var err error
	if filter.StartTime, err = httputil.ParseQueryTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = httputil.ParseQueryTime(r, "end_time"); err != nil {
		return filter, err
	}

	if actor := query.Get("actor_id"); actor != "" {
		filter.ActorID = &actor
	}
	if org := query.Get("organization_id"); org != "" {
		filter.OrganizationID = &org
	}

	if eventTypes := query.Get("event_types"); eventTypes != "" {
		for _, et := range strings.Split(eventTypes, ",") {
			if et = strings.TrimSpace(et); et != "" {
				filter.EventTypes = append(filter.EventTypes, EventType(et))
			}
		}
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status := EventStatus(statusStr)
		filter.Status = &status
	}

	filter.ResourceType = ResourceType(query.Get("resource_type"))
	filter.ResourceID = query.Get("resource_id")

	filter.Limit = DefaultSearchLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > 1000 {
			return filter, apperrors.InvalidField("limit", "must be between 1 and 1000")
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filter, apperrors.InvalidField("offset", "must be a non-negative integer")
		}
		filter.Offset = offset
	}

	return filter, nil
}
