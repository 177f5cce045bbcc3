package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/principal"
)

var allActions = []Action{ActionRead, ActionWrite, ActionDelete}

func TestFlagsApply(t *testing.T) {
	org := Flags{CanRead: true, CanWrite: false, CanDelete: true}

	tests := []struct {
		name     string
		override *Override
		expected Flags
	}{
		{name: "nil override keeps org", override: nil, expected: org},
		{name: "empty override keeps org", override: &Override{}, expected: org},
		{
			name:     "read revoked only",
			override: &Override{CanRead: boolPtr(false)},
			expected: Flags{CanRead: false, CanWrite: false, CanDelete: true},
		},
		{
			name:     "write granted only",
			override: &Override{CanWrite: boolPtr(true)},
			expected: Flags{CanRead: true, CanWrite: true, CanDelete: true},
		},
		{
			name:     "all fields replaced",
			override: &Override{CanRead: boolPtr(false), CanWrite: boolPtr(true), CanDelete: boolPtr(false)},
			expected: Flags{CanRead: false, CanWrite: true, CanDelete: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, org.Apply(tt.override))
		})
	}
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"read", "WRITE", " delete "} {
		_, err := ParseAction(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseAction("publish")
	assert.Error(t, err)
}

func TestEvaluate_SuperAdminBypassIsTotal(t *testing.T) {
	org := "org-1"
	admins := []principal.Principal{
		{UserID: "a", IsSuperAdmin: true},
		{UserID: "b", IsSuperAdmin: true, OrganizationID: &org},
	}
	snapshots := []Snapshot{
		{},
		{ModuleEnabled: true},
		{ModuleEnabled: true, PageFound: true},
		{ModuleEnabled: true, PageFound: true, OrgGrant: &Flags{}},
		{ModuleEnabled: true, PageFound: true, UserOverride: &Override{CanRead: boolPtr(false)}},
	}

	for _, p := range admins {
		for _, s := range snapshots {
			for _, a := range allActions {
				assert.Equal(t, Decision{Allowed: true, Reason: ReasonSuperAdminBypass}, Evaluate(p, s, a))
			}
		}
	}
}

func TestEvaluate_NoOrganizationDenial(t *testing.T) {
	empty := ""
	principals := []principal.Principal{
		{UserID: "u1"},
		{UserID: "u2", OrganizationID: &empty},
	}
	full := Snapshot{ModuleEnabled: true, PageFound: true, OrgGrant: &AllFlags}

	for _, p := range principals {
		for _, a := range allActions {
			assert.Equal(t, Decision{Allowed: false, Reason: ReasonNoOrganization}, Evaluate(p, full, a))
		}
	}
}

func TestEvaluate_ModuleDisabledMasksGrants(t *testing.T) {
	p := member("u1", "org-1", "club-norte")
	s := Snapshot{
		ModuleEnabled: false,
		PageFound:     true,
		OrgGrant:      &AllFlags,
		UserOverride:  &Override{CanRead: boolPtr(true), CanWrite: boolPtr(true), CanDelete: boolPtr(true)},
	}
	for _, a := range allActions {
		assert.Equal(t, Decision{Allowed: false, Reason: ReasonModuleNotEnabled}, Evaluate(p, s, a))
	}
}

func TestEvaluate_PageNotFound(t *testing.T) {
	p := member("u1", "org-1", "club-norte")
	s := Snapshot{ModuleEnabled: true, PageFound: false}
	assert.Equal(t, Decision{Allowed: false, Reason: ReasonPageNotFound}, Evaluate(p, s, ActionRead))
}

func TestEvaluate_MissingOrgGrantIsAllFalse(t *testing.T) {
	p := member("u1", "org-1", "club-norte")
	s := Snapshot{ModuleEnabled: true, PageFound: true}
	for _, a := range allActions {
		assert.Equal(t, Decision{Allowed: false, Reason: ReasonDenied}, Evaluate(p, s, a))
	}

	s.UserOverride = &Override{CanDelete: boolPtr(true)}
	assert.Equal(t, Decision{Allowed: true, Reason: ReasonGranted}, Evaluate(p, s, ActionDelete))
	assert.False(t, Evaluate(p, s, ActionRead).Allowed)
}

func TestEvaluate_PerActionOverrideIndependence(t *testing.T) {
	p := member("u1", "org-1", "club-norte")
	s := Snapshot{
		ModuleEnabled: true,
		PageFound:     true,
		OrgGrant:      &Flags{CanRead: true},
		UserOverride:  &Override{CanRead: boolPtr(false)},
	}

	assert.False(t, Evaluate(p, s, ActionRead).Allowed, "read is overridden")
	assert.False(t, Evaluate(p, s, ActionWrite).Allowed, "write keeps the org value")
	assert.False(t, Evaluate(p, s, ActionDelete).Allowed, "delete keeps the org value")
	assert.Equal(t, Flags{}, EffectiveFlags(s.OrgGrant, s.UserOverride))
}

func TestGate(t *testing.T) {
	d, decided := Gate(superAdmin, false)
	assert.True(t, decided)
	assert.True(t, d.Allowed)

	d, decided = Gate(principal.Principal{UserID: "u"}, true)
	assert.True(t, decided)
	assert.Equal(t, ReasonNoOrganization, d.Reason)

	d, decided = Gate(member("u", "o", "s"), false)
	assert.True(t, decided)
	assert.Equal(t, ReasonModuleNotEnabled, d.Reason)

	_, decided = Gate(member("u", "o", "s"), true)
	assert.False(t, decided)
}

// scenario fixtures: gimnasio-central has booking enabled with a full grant
// on "list"; spa-wellness has nothing assigned
func scenarioStore() *fixtureStore {
	return newFixtureStore().
		addModule("mod-booking", "booking", page("page-list", "list", 1), page("page-create", "create", 2)).
		addModule("mod-inventory", "inventory").
		enable("org-gimnasio", "mod-booking", true).
		enable("org-gimnasio", "mod-inventory", true).
		grant("org-gimnasio", "page-list", AllFlags)
}

func TestResolve_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("A: org grant without override allows write", func(t *testing.T) {
		r := NewResolver(scenarioStore(), ResolverConfig{})
		d, err := r.Resolve(ctx, member("user-a", "org-gimnasio", "gimnasio-central"), "booking", "list", ActionWrite)
		require.NoError(t, err)
		assert.Equal(t, Decision{Allowed: true, Reason: ReasonGranted}, d)
	})

	t.Run("B: override revokes write but read defers to org", func(t *testing.T) {
		store := scenarioStore().override("user-b", "page-list", Override{CanWrite: boolPtr(false)})
		r := NewResolver(store, ResolverConfig{})
		p := member("user-b", "org-gimnasio", "gimnasio-central")

		d, err := r.Resolve(ctx, p, "booking", "list", ActionWrite)
		require.NoError(t, err)
		assert.Equal(t, Decision{Allowed: false, Reason: ReasonDenied}, d)

		d, err = r.Resolve(ctx, p, "booking", "list", ActionRead)
		require.NoError(t, err)
		assert.Equal(t, Decision{Allowed: true, Reason: ReasonGranted}, d)
	})

	t.Run("C: organization without assignments", func(t *testing.T) {
		r := NewResolver(scenarioStore(), ResolverConfig{})
		p := member("user-c", "org-spa", "spa-wellness")
		for _, module := range []string{"booking", "inventory", "does-not-exist"} {
			for _, a := range allActions {
				d, err := r.Resolve(ctx, p, module, "list", a)
				require.NoError(t, err)
				assert.Equal(t, Decision{Allowed: false, Reason: ReasonModuleNotEnabled}, d)
			}
		}
	})

	t.Run("D: enabled module without pages", func(t *testing.T) {
		r := NewResolver(scenarioStore(), ResolverConfig{})
		p := member("user-a", "org-gimnasio", "gimnasio-central")
		for _, pageName := range []string{"list", "stock", ""} {
			d, err := r.Resolve(ctx, p, "inventory", pageName, ActionRead)
			require.NoError(t, err)
			assert.Equal(t, Decision{Allowed: false, Reason: ReasonPageNotFound}, d)
		}
	})

	t.Run("super-admin on a module that does not exist", func(t *testing.T) {
		store := scenarioStore()
		r := NewResolver(store, ResolverConfig{})
		d, err := r.Resolve(ctx, superAdmin, "ghost", "nowhere", ActionDelete)
		require.NoError(t, err)
		assert.Equal(t, Decision{Allowed: true, Reason: ReasonSuperAdminBypass}, d)
		assert.Zero(t, store.snapshotCalls.Load(), "bypass must not touch the store")
	})

	t.Run("disabled assignment masks and re-enable restores", func(t *testing.T) {
		store := scenarioStore()
		r := NewResolver(store, ResolverConfig{})
		p := member("user-a", "org-gimnasio", "gimnasio-central")

		store.enable("org-gimnasio", "mod-booking", false)
		d, err := r.Resolve(ctx, p, "booking", "list", ActionRead)
		require.NoError(t, err)
		assert.Equal(t, ReasonModuleNotEnabled, d.Reason)

		store.enable("org-gimnasio", "mod-booking", true)
		d, err = r.Resolve(ctx, p, "booking", "list", ActionRead)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
}
