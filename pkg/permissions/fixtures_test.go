package permissions

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// fixtureStore is an in-memory Store with the same semantics as PostgresStore
type fixtureStore struct {
	mu        sync.Mutex
	modules   map[string]*fixtureModule      // by name
	enabled   map[string]map[string]bool     // org -> module id -> is_enabled
	orgGrants map[string]map[string]Flags    // org -> page id
	overrides map[string]map[string]Override // user -> page id
	err       error

	snapshotCalls atomic.Int32
	listCalls     atomic.Int32
}

type fixtureModule struct {
	id    string
	name  string
	pages []fixturePage
}

type fixturePage struct {
	Page
	inactive bool
}

func newFixtureStore() *fixtureStore {
	return &fixtureStore{
		modules:   make(map[string]*fixtureModule),
		enabled:   make(map[string]map[string]bool),
		orgGrants: make(map[string]map[string]Flags),
		overrides: make(map[string]map[string]Override),
	}
}

func (f *fixtureStore) addModule(id, name string, pages ...fixturePage) *fixtureStore {
	f.modules[name] = &fixtureModule{id: id, name: name, pages: pages}
	return f
}

func (f *fixtureStore) enable(orgID, moduleID string, enabled bool) *fixtureStore {
	if f.enabled[orgID] == nil {
		f.enabled[orgID] = make(map[string]bool)
	}
	f.enabled[orgID][moduleID] = enabled
	return f
}

func (f *fixtureStore) grant(orgID, pageID string, flags Flags) *fixtureStore {
	if f.orgGrants[orgID] == nil {
		f.orgGrants[orgID] = make(map[string]Flags)
	}
	f.orgGrants[orgID][pageID] = flags
	return f
}

func (f *fixtureStore) override(userID, pageID string, o Override) *fixtureStore {
	if f.overrides[userID] == nil {
		f.overrides[userID] = make(map[string]Override)
	}
	f.overrides[userID][pageID] = o
	return f
}

func (f *fixtureStore) Snapshot(ctx context.Context, orgID, userID, moduleName, pageName string) (Snapshot, error) {
	f.snapshotCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Snapshot{}, f.err
	}

	m, ok := f.modules[moduleName]
	if !ok {
		return Snapshot{}, nil
	}
	snap := Snapshot{ModuleEnabled: f.enabled[orgID][m.id]}
	for _, p := range m.pages {
		if p.Name != pageName || p.inactive {
			continue
		}
		snap.PageFound = true
		snap.PageID = p.ID
		if g, ok := f.orgGrants[orgID][p.ID]; ok {
			snap.OrgGrant = &g
		}
		if o, ok := f.overrides[userID][p.ID]; ok {
			snap.UserOverride = &o
		}
	}
	return snap, nil
}

func (f *fixtureStore) ModuleForOrganization(ctx context.Context, orgID, moduleName string) (ModuleRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ModuleRef{}, f.err
	}
	m, ok := f.modules[moduleName]
	if !ok {
		return ModuleRef{Name: moduleName}, nil
	}
	return ModuleRef{ID: m.id, Name: m.name, Exists: true, Enabled: f.enabled[orgID][m.id]}, nil
}

func (f *fixtureStore) ActivePages(ctx context.Context, moduleID string) ([]Page, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages []Page
	for _, m := range f.modules {
		if m.id != moduleID {
			continue
		}
		for _, p := range m.pages {
			if !p.inactive {
				pages = append(pages, p.Page)
			}
		}
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].SortOrder < pages[j].SortOrder })
	return pages, nil
}

func (f *fixtureStore) OrganizationGrants(ctx context.Context, orgID, moduleID string) (map[string]Flags, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Flags)
	for id, g := range f.orgGrants[orgID] {
		out[id] = g
	}
	return out, nil
}

func (f *fixtureStore) UserOverrides(ctx context.Context, userID, moduleID string) (map[string]Override, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]Override)
	for id, o := range f.overrides[userID] {
		out[id] = o
	}
	return out, nil
}

func (f *fixtureStore) ReachableModules(ctx context.Context, orgID string, all bool) ([]ModuleSummary, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []ModuleSummary
	for _, m := range f.modules {
		if all || f.enabled[orgID][m.id] {
			out = append(out, ModuleSummary{ID: m.id, Name: m.name, DisplayName: m.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fixtureStore) PagesForModules(ctx context.Context, moduleIDs []string) (map[string][]Page, error) {
	out := make(map[string][]Page)
	for _, id := range moduleIDs {
		pages, err := f.ActivePages(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(pages) > 0 {
			out[id] = pages
		}
	}
	return out, nil
}

func (f *fixtureStore) OrganizationPageGrants(ctx context.Context, orgID string) (map[string]Flags, error) {
	return f.OrganizationGrants(ctx, orgID, "")
}

func (f *fixtureStore) UserPageOverrides(ctx context.Context, userID string) (map[string]Override, error) {
	return f.UserOverrides(ctx, userID, "")
}

func page(id, name string, sortOrder int) fixturePage {
	return fixturePage{Page: Page{ID: id, Name: name, DisplayName: name, RoutePath: "/" + name, SortOrder: sortOrder}}
}

func boolPtr(b bool) *bool { return &b }

func member(userID, orgID, slug string) principal.Principal {
	return principal.Principal{UserID: userID, OrganizationID: &orgID, OrganizationSlug: slug}
}

var superAdmin = principal.Principal{UserID: "admin-1", IsSuperAdmin: true}
