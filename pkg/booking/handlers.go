package booking

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// Module is the module name booking routes are checked against
const Module = "booking"

// Page names of the booking module
const (
	PageCourts       = "courts"
	PageReservations = "reservations"
	PageEvents       = "events"
)

// Handlers serves the booking API of a tenant
type Handlers struct {
	store Store
	log   *logrus.Logger
}

// NewHandlers creates booking handlers
func NewHandlers(store Store, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.New()
	}
	return &Handlers{store: store, log: log}
}

// RegisterRoutes registers the booking routes under /org/{orgSlug}/booking.
// Every route is scoped to the caller's tenant and checked against the page
// it touches.
func (h *Handlers) RegisterRoutes(router *mux.Router, guard *permissions.Middleware) {
	r := router.PathPrefix("/org/{orgSlug}/booking").Subrouter()
	r.Use(guard.TenantScope)

	handle := func(path, method, page string, action permissions.Action, fn http.HandlerFunc) {
		r.Handle(path, guard.Require(Module, page, action)(fn)).Methods(method)
	}

	// Courts
	handle("/courts", "GET", PageCourts, permissions.ActionRead, h.listCourts)
	handle("/courts", "POST", PageCourts, permissions.ActionWrite, h.createCourt)
	handle("/courts/{courtId}", "DELETE", PageCourts, permissions.ActionDelete, h.deleteCourt)

	// Reservations
	handle("/reservations", "GET", PageReservations, permissions.ActionRead, h.listReservations)
	handle("/reservations", "POST", PageReservations, permissions.ActionWrite, h.createReservation)
	handle("/reservations/{reservationId}/status", "PATCH", PageReservations, permissions.ActionWrite, h.setReservationStatus)

	// Events
	handle("/events", "GET", PageEvents, permissions.ActionRead, h.listEvents)
	handle("/events", "POST", PageEvents, permissions.ActionWrite, h.createEvent)
}

// listCourts handles GET /org/{orgSlug}/booking/courts
func (h *Handlers) listCourts(w http.ResponseWriter, r *http.Request) {
	courts, err := h.store.ListCourts(r.Context(), tenantOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"courts": courts})
}

// createCourt handles POST /org/{orgSlug}/booking/courts
func (h *Handlers) createCourt(w http.ResponseWriter, r *http.Request) {
	var req CreateCourtRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	court, err := h.store.CreateCourt(r.Context(), tenantOf(r), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, map[string]interface{}{"court": court})
}

// deleteCourt handles DELETE /org/{orgSlug}/booking/courts/{courtId}
func (h *Handlers) deleteCourt(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "courtId")
	if !ok {
		return
	}
	if err := h.store.DeleteCourt(r.Context(), tenantOf(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listReservations handles GET /org/{orgSlug}/booking/reservations
func (h *Handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	var filter ReservationFilter
	var err error
	if filter.From, err = httputil.ParseQueryTime(r, "start"); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if filter.To, err = httputil.ParseQueryTime(r, "end"); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	filter.CourtID = httputil.ParseQueryString(r, "courtId", "")

	reservations, err := h.store.ListReservations(r.Context(), tenantOf(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"reservations": reservations})
}

// createReservation handles POST /org/{orgSlug}/booking/reservations
func (h *Handlers) createReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	reservation, err := h.store.CreateReservation(r.Context(), tenantOf(r), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, map[string]interface{}{"reservation": reservation})
}

// setReservationStatus handles PATCH /org/{orgSlug}/booking/reservations/{reservationId}/status
func (h *Handlers) setReservationStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "reservationId")
	if !ok {
		return
	}
	var req struct {
		Status Status `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		httputil.WriteAppError(w, apperrors.InvalidField("status", "must be one of confirmed, completed, cancelled"))
		return
	}

	reservation, err := h.store.SetReservationStatus(r.Context(), tenantOf(r), id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"reservation": reservation})
}

// listEvents handles GET /org/{orgSlug}/booking/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	from, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	to, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	events, err := h.store.ListEvents(r.Context(), tenantOf(r), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}

// createEvent handles POST /org/{orgSlug}/booking/events
func (h *Handlers) createEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	event, err := h.store.CreateEvent(r.Context(), tenantOf(r), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, map[string]interface{}{"event": event})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound, apperrors.KindConflict, apperrors.KindBusinessRule, apperrors.KindValidation:
	default:
		h.log.WithError(err).WithFields(logrus.Fields{
			"tenant": tenantOf(r),
			"path":   r.URL.Path,
		}).Error("booking request failed")
	}
	httputil.WriteAppError(w, err)
}

func tenantOf(r *http.Request) string {
	return contextkeys.GetTenant(r.Context())
}

func actor(r *http.Request) *string {
	if p, ok := principal.FromContext(r.Context()); ok {
		return p.ActorID()
	}
	return nil
}
