package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

func TestMemoryLogger_Search(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := contextkeys.WithUserID(context.Background(), "root")
	org := "org-1"

	require.NoError(t, logger.LogAdminAction(ctx, EventTypeAdminOrgCreate, nil, &org, "created"))
	require.NoError(t, logger.LogProvisioning(ctx, EventTypeTenantNamespaceCreate, "club-norte", "", nil))
	require.NoError(t, logger.LogProvisioning(ctx, EventTypeTenantTablesProvision, "club-norte", "booking", errors.New("boom")))

	all := logger.Events()
	require.Len(t, all, 3)
	for _, e := range all {
		assert.NotEmpty(t, e.ID)
		require.NotNil(t, e.ActorID)
		assert.Equal(t, "root", *e.ActorID)
	}

	failed := EventStatusFailure
	events, err := logger.Search(ctx, SearchFilter{Status: &failed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "booking", events[0].ResourceName)
	assert.Equal(t, "boom", events[0].ErrorMessage)

	events, err = logger.Search(ctx, SearchFilter{OrganizationID: &org})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeAdminOrgCreate, events[0].EventType)

	assert.Len(t, logger.EventsOfType(EventTypeTenantNamespaceCreate), 1)

	events, err = logger.Search(ctx, SearchFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = logger.Search(ctx, SearchFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFromContext(t *testing.T) {
	assert.IsType(t, &noOpLogger{}, FromContext(context.Background()))

	logger := NewMemoryLogger()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	require.NoError(t, LogDenied(ctx, ResourceTypeModulePage, "booking/list", "ModuleNotEnabled"))
	events := logger.EventsOfType(EventTypeAuthzAccessDenied)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatusDenied, events[0].Status)
	assert.Contains(t, events[0].Message, "ModuleNotEnabled")
}

func TestRetention_RunOnce(t *testing.T) {
	logger := NewMemoryLogger()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, logger.Log(context.Background(), &AuditEvent{EventType: EventTypeModuleRegister, Timestamp: now.AddDate(0, 0, -120)}))
	require.NoError(t, logger.Log(context.Background(), &AuditEvent{EventType: EventTypeModuleDelete, Timestamp: now.AddDate(0, 0, -91)}))
	require.NoError(t, logger.Log(context.Background(), &AuditEvent{EventType: EventTypeModuleToggle, Timestamp: now.AddDate(0, 0, -10)}))

	r := NewRetention(logger, 90, "", nil)
	r.now = func() time.Time { return now }

	purged, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	remaining := logger.Events()
	require.Len(t, remaining, 1)
	assert.Equal(t, EventTypeModuleToggle, remaining[0].EventType)
}

func TestRetention_Start(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := NewRetention(NewMemoryLogger(), 0, "", nil)
		require.NoError(t, r.Start())
		purged, err := r.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, purged)
		r.Stop()
	})

	t.Run("invalid schedule", func(t *testing.T) {
		r := NewRetention(NewMemoryLogger(), 30, "not a schedule", nil)
		err := r.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid audit retention schedule")
	})

	t.Run("valid schedule", func(t *testing.T) {
		r := NewRetention(NewMemoryLogger(), 30, "@daily", nil)
		require.NoError(t, r.Start())
		r.Stop()
	})
}

func TestHandlers_ListEvents(t *testing.T) {
	logger := NewMemoryLogger()
	org := "org-1"
	require.NoError(t, logger.LogAdminAction(context.Background(), EventTypeAdminOrgCreate, nil, &org, "created"))
	require.NoError(t, logger.LogProvisioning(context.Background(), EventTypeTenantNamespaceCreate, "club-norte", "", nil))

	router := mux.NewRouter()
	NewHandlers(logger).RegisterRoutes(router)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"all", "", http.StatusOK, 2},
		{"by event type", "?event_types=admin.org_create", http.StatusOK, 1},
		{"by resource", "?resource_type=tenant&resource_id=club-norte", http.StatusOK, 1},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0},
		{"bad time", "?start_time=yesterday", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body struct {
				Count int `json:"count"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCount, body.Count)
		})
	}
}
