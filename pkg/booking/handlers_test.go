package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// memStore is an in-memory Store keyed by tenant slug
type memStore struct {
	mu           sync.Mutex
	courts       map[string]map[string]*Court
	reservations map[string]map[string]*Reservation
	events       map[string][]Event
	err          error
}

func newMemStore() *memStore {
	return &memStore{
		courts:       make(map[string]map[string]*Court),
		reservations: make(map[string]map[string]*Reservation),
		events:       make(map[string][]Event),
	}
}

func (m *memStore) addCourt(slug, id, name string, active bool) {
	if m.courts[slug] == nil {
		m.courts[slug] = make(map[string]*Court)
	}
	m.courts[slug][id] = &Court{ID: id, Name: name, Type: "padel", IsActive: active}
}

func (m *memStore) ListCourts(ctx context.Context, slug string) ([]Court, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []Court{}
	for _, c := range m.courts[slug] {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateCourt(ctx context.Context, slug string, actor *string, req CreateCourtRequest) (*Court, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courts[slug] {
		if c.Name == req.Name {
			return nil, apperrors.Conflict(apperrors.CodeDuplicateCourt, "court exists")
		}
	}
	if m.courts[slug] == nil {
		m.courts[slug] = make(map[string]*Court)
	}
	c := &Court{ID: uuid.NewString(), Name: req.Name, Type: req.Type, IsActive: true, CreatedAt: time.Now()}
	m.courts[slug][c.ID] = c
	return c, nil
}

func (m *memStore) DeleteCourt(ctx context.Context, slug, courtID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courts[slug][courtID]; !ok {
		return apperrors.NotFound("court", courtID)
	}
	for _, r := range m.reservations[slug] {
		if r.CourtID == courtID && r.Status == StatusConfirmed {
			return apperrors.BusinessRule(apperrors.CodeDeleteBlockedByActiveChildren, "court has reservations")
		}
	}
	delete(m.courts[slug], courtID)
	return nil
}

func (m *memStore) ListReservations(ctx context.Context, slug string, filter ReservationFilter) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Reservation{}
	for _, r := range m.reservations[slug] {
		if filter.CourtID != "" && r.CourtID != filter.CourtID {
			continue
		}
		if filter.From != nil && r.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && r.StartTime.After(*filter.To) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) conflicts(slug, courtID, exclude string, start, end time.Time) bool {
	for _, r := range m.reservations[slug] {
		if r.ID != exclude && r.CourtID == courtID && r.Status.OccupiesSlot() && r.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (m *memStore) CreateReservation(ctx context.Context, slug string, actor *string, req CreateReservationRequest) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courts[slug][req.CourtID]
	if !ok {
		return nil, apperrors.NotFound("court", req.CourtID)
	}
	if !c.IsActive {
		return nil, apperrors.BusinessRule(apperrors.CodeCourtInactive, "court is not accepting reservations")
	}
	if m.conflicts(slug, req.CourtID, "", req.StartTime, req.EndTime) {
		return nil, apperrors.Conflict(apperrors.CodeTimeSlotConflict, "time slot conflict")
	}
	if m.reservations[slug] == nil {
		m.reservations[slug] = make(map[string]*Reservation)
	}
	r := &Reservation{
		ID: uuid.NewString(), CourtID: c.ID, CourtName: c.Name, Name: req.Name,
		StartTime: req.StartTime, EndTime: req.EndTime, Status: StatusConfirmed,
		PaymentMethod: req.PaymentMethod, CreatedBy: actor,
	}
	m.reservations[slug][r.ID] = r
	return r, nil
}

func (m *memStore) SetReservationStatus(ctx context.Context, slug, id string, status Status) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[slug][id]
	if !ok {
		return nil, apperrors.NotFound("reservation", id)
	}
	if status.OccupiesSlot() && !r.Status.OccupiesSlot() && m.conflicts(slug, r.CourtID, id, r.StartTime, r.EndTime) {
		return nil, apperrors.Conflict(apperrors.CodeTimeSlotConflict, "time slot conflict")
	}
	r.Status = status
	return r, nil
}

func (m *memStore) ListEvents(ctx context.Context, slug string, from, to *time.Time) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event{}, m.events[slug]...), nil
}

func (m *memStore) CreateEvent(ctx context.Context, slug string, actor *string, req CreateEventRequest) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := Event{ID: uuid.NewString(), Name: req.Name, Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime, CourtIDs: req.CourtIDs, CreatedBy: actor}
	m.events[slug] = append(m.events[slug], e)
	return &e, nil
}

// grantStore answers permission snapshots for the booking module of one
// organization from a page -> flags table
type grantStore struct {
	orgID   string
	enabled bool
	grants  map[string]permissions.Flags
}

func (g *grantStore) Snapshot(ctx context.Context, orgID, userID, moduleName, pageName string) (permissions.Snapshot, error) {
	if moduleName != Module {
		return permissions.Snapshot{}, nil
	}
	snap := permissions.Snapshot{ModuleEnabled: g.enabled && orgID == g.orgID, PageFound: true, PageID: "page-" + pageName}
	if f, ok := g.grants[pageName]; ok && orgID == g.orgID {
		snap.OrgGrant = &f
	}
	return snap, nil
}

func (g *grantStore) ModuleForOrganization(ctx context.Context, orgID, moduleName string) (permissions.ModuleRef, error) {
	return permissions.ModuleRef{ID: "mod-booking", Name: Module, Exists: moduleName == Module, Enabled: g.enabled}, nil
}

func (g *grantStore) ActivePages(ctx context.Context, moduleID string) ([]permissions.Page, error) {
	return nil, nil
}

func (g *grantStore) OrganizationGrants(ctx context.Context, orgID, moduleID string) (map[string]permissions.Flags, error) {
	return nil, nil
}

func (g *grantStore) UserOverrides(ctx context.Context, userID, moduleID string) (map[string]permissions.Override, error) {
	return nil, nil
}

func (g *grantStore) ReachableModules(ctx context.Context, orgID string, all bool) ([]permissions.ModuleSummary, error) {
	return nil, nil
}

func (g *grantStore) PagesForModules(ctx context.Context, moduleIDs []string) (map[string][]permissions.Page, error) {
	return nil, nil
}

func (g *grantStore) OrganizationPageGrants(ctx context.Context, orgID string) (map[string]permissions.Flags, error) {
	return nil, nil
}

func (g *grantStore) UserPageOverrides(ctx context.Context, userID string) (map[string]permissions.Override, error) {
	return nil, nil
}

const (
	orgID   = "9d2f6b1a-3c4e-4f5a-8b7c-1e2d3f4a5b6c"
	orgSlug = "club-norte"
)

type fixture struct {
	store  *memStore
	grants *grantStore
	router *mux.Router
}

func newFixture() *fixture {
	f := &fixture{
		store: newMemStore(),
		grants: &grantStore{orgID: orgID, enabled: true, grants: map[string]permissions.Flags{
			PageCourts:       permissions.AllFlags,
			PageReservations: permissions.AllFlags,
			PageEvents:       {CanRead: true},
		}},
		router: mux.NewRouter(),
	}
	f.store.addCourt(orgSlug, courtUUID, "Cancha Pádel 1", true)

	log := observability.Discard()
	resolver := permissions.NewResolver(f.grants, permissions.ResolverConfig{Logger: log})
	NewHandlers(f.store, log).RegisterRoutes(f.router, permissions.NewMiddleware(resolver, log))
	return f
}

func member() principal.Principal {
	id := orgID
	return principal.Principal{UserID: "user-1", OrganizationID: &id, OrganizationSlug: orgSlug}
}

func (f *fixture) do(p principal.Principal, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(principal.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterRoutes(t *testing.T) {
	f := newFixture()

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/org/club-norte/booking/courts"},
		{"POST", "/org/club-norte/booking/courts"},
		{"DELETE", "/org/club-norte/booking/courts/123"},
		{"GET", "/org/club-norte/booking/reservations"},
		{"POST", "/org/club-norte/booking/reservations"},
		{"PATCH", "/org/club-norte/booking/reservations/123/status"},
		{"GET", "/org/club-norte/booking/events"},
		{"POST", "/org/club-norte/booking/events"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			matched := f.router.Match(req, &match)
			assert.True(t, matched, "Route %s %s should be registered", tt.method, tt.path)
		})
	}
}

func reservationBody(start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"courtId":   courtUUID,
		"name":      "Lucía",
		"startTime": start.Format(time.RFC3339),
		"endTime":   start.Add(time.Hour).Format(time.RFC3339),
	}
}

func TestHandlers_ReservationConflicts(t *testing.T) {
	f := newFixture()
	path := "/org/club-norte/booking/reservations"

	rec := f.do(member(), "POST", path, reservationBody(base))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Reservation Reservation `json:"reservation"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, StatusConfirmed, created.Reservation.Status)
	assert.Equal(t, DefaultPaymentMethod, created.Reservation.PaymentMethod)
	require.NotNil(t, created.Reservation.CreatedBy)
	assert.Equal(t, "user-1", *created.Reservation.CreatedBy)

	rec = f.do(member(), "POST", path, reservationBody(base.Add(30*time.Minute)))
	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, apperrors.CodeTimeSlotConflict, errResp.Code)

	// back to back is fine
	rec = f.do(member(), "POST", path, reservationBody(base.Add(time.Hour)))
	require.Equal(t, http.StatusCreated, rec.Code)

	// cancelling frees the slot
	statusPath := fmt.Sprintf("%s/%s/status", path, created.Reservation.ID)
	rec = f.do(member(), "PATCH", statusPath, map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(member(), "POST", path, reservationBody(base.Add(-30*time.Minute)))
	require.Equal(t, http.StatusCreated, rec.Code)

	// and confirming it again collides with the booking that took its place
	rec = f.do(member(), "PATCH", statusPath, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(member(), "PATCH", statusPath, map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(member(), "GET", path+"?courtId="+courtUUID+"&start="+base.Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Reservations []Reservation `json:"reservations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Reservations, 2)

	rec = f.do(member(), "GET", path+"?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Courts(t *testing.T) {
	f := newFixture()
	path := "/org/club-norte/booking/courts"

	rec := f.do(member(), "POST", path, map[string]string{"name": "Cancha Fútbol 1", "type": "futbol"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(member(), "POST", path, map[string]string{"name": "Cancha Fútbol 1", "type": "futbol"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(member(), "POST", path, map[string]string{"type": "futbol"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(member(), "GET", path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Courts []Court `json:"courts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Courts, 2)

	rec = f.do(member(), "POST", "/org/club-norte/booking/reservations", reservationBody(base))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(member(), "DELETE", path+"/"+courtUUID, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, apperrors.CodeDeleteBlockedByActiveChildren, errResp.Code)

	rec = f.do(member(), "DELETE", path+"/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(member(), "DELETE", path+"/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_InactiveCourt(t *testing.T) {
	f := newFixture()
	closed := uuid.NewString()
	f.store.addCourt(orgSlug, closed, "Cancha Vieja", false)

	body := reservationBody(base)
	body["courtId"] = closed
	rec := f.do(member(), "POST", "/org/club-norte/booking/reservations", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, apperrors.CodeCourtInactive, errResp.Code)
}

func TestHandlers_Guarded(t *testing.T) {
	f := newFixture()
	event := map[string]interface{}{
		"name":      "Torneo de Pádel",
		"date":      base.Format(time.RFC3339),
		"startTime": base.Format(time.RFC3339),
		"endTime":   base.Add(4 * time.Hour).Format(time.RFC3339),
		"courtIds":  []string{courtUUID},
	}

	tests := []struct {
		name       string
		principal  principal.Principal
		method     string
		path       string
		body       interface{}
		setup      func(*fixture)
		wantStatus int
		wantReason string
	}{
		{
			name: "read only page refuses writes", principal: member(),
			method: "POST", path: "/org/club-norte/booking/events", body: event,
			wantStatus: http.StatusForbidden, wantReason: string(permissions.ReasonDenied),
		},
		{
			name: "read only page allows reads", principal: member(),
			method: "GET", path: "/org/club-norte/booking/events",
			wantStatus: http.StatusOK,
		},
		{
			name: "super admin bypasses grants", principal: principal.Principal{UserID: "root", IsSuperAdmin: true},
			method: "POST", path: "/org/club-norte/booking/events", body: event,
			wantStatus: http.StatusCreated,
		},
		{
			name: "other tenant", principal: member(),
			method: "GET", path: "/org/spa-wellness/booking/courts",
			wantStatus: http.StatusForbidden, wantReason: string(permissions.ReasonDenied),
		},
		{
			name: "no organization", principal: principal.Principal{UserID: "drifter"},
			method: "GET", path: "/org/club-norte/booking/courts",
			wantStatus: http.StatusForbidden, wantReason: string(permissions.ReasonNoOrganization),
		},
		{
			name: "module disabled", principal: member(),
			method: "GET", path: "/org/club-norte/booking/courts",
			setup:      func(f *fixture) { f.grants.enabled = false },
			wantStatus: http.StatusForbidden, wantReason: string(permissions.ReasonModuleNotEnabled),
		},
		{
			name: "store failure", principal: member(),
			method: "GET", path: "/org/club-norte/booking/courts",
			setup:      func(f *fixture) { f.store.err = apperrors.New(apperrors.KindStoreUnavailable, "", "tenant store down") },
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			rec := f.do(tt.principal, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantReason != "" {
				var errResp httputil.ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
				assert.Equal(t, tt.wantReason, errResp.Reason)
			}
		})
	}

	rec := f.do(member(), "GET", "/org/club-norte/booking/courts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
