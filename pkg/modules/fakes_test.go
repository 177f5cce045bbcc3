package modules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
)

// memStore keeps the control plane in memory. It implements both Store and
// permissions.Store so lifecycle changes can be checked through a real
// resolver.
type memStore struct {
	mu        sync.Mutex
	seq       int
	modules   map[string]*Module     // by id
	pages     map[string]*ModulePage // by id
	orgs      map[string]*Organization
	assigned  map[string]map[string]bool                 // org -> module id -> enabled
	grants    map[string]map[string]permissions.Flags    // org -> page id
	overrides map[string]map[string]permissions.Override // user -> page id
	err       error
}

func newMemStore() *memStore {
	return &memStore{
		modules:   make(map[string]*Module),
		pages:     make(map[string]*ModulePage),
		orgs:      make(map[string]*Organization),
		assigned:  make(map[string]map[string]bool),
		grants:    make(map[string]map[string]permissions.Flags),
		overrides: make(map[string]map[string]permissions.Override),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addOrg(id, slug string) *memStore {
	s.orgs[id] = &Organization{ID: id, Slug: slug, IsActive: true}
	return s
}

func (s *memStore) moduleByName(name string) *Module {
	for _, m := range s.modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (s *memStore) pageCount(moduleID string) int {
	n := 0
	for _, p := range s.pages {
		if p.ModuleID == moduleID {
			n++
		}
	}
	return n
}

func (s *memStore) CreateModule(ctx context.Context, m *Module, pages []PageDef) (*ModuleWithPages, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.moduleByName(m.Name) != nil {
		return nil, apperrors.Conflict(apperrors.CodeDuplicateModule, "module already exists")
	}
	m.ID = s.nextID("mod")
	m.IsActive = true
	m.CreatedAt = time.Now()
	stored := *m
	s.modules[m.ID] = &stored

	created := s.insertPages(m.ID, pages)
	stored.PageCount = len(created)
	m.PageCount = len(created)
	return &ModuleWithPages{Module: stored, Pages: created}, nil
}

func (s *memStore) insertPages(moduleID string, pages []PageDef) []ModulePage {
	created := make([]ModulePage, 0, len(pages))
	for _, def := range pages {
		p := &ModulePage{ID: s.nextID("page"), ModuleID: moduleID, PageDef: def, IsActive: true}
		s.pages[p.ID] = p
		created = append(created, *p)
	}
	return created
}

func (s *memStore) GetModule(ctx context.Context, id string) (*Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[id]
	if !ok {
		return nil, apperrors.NotFound("module", id)
	}
	out := *m
	out.PageCount = s.pageCount(id)
	return &out, nil
}

func (s *memStore) ListModules(ctx context.Context) ([]Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Module
	for _, m := range s.modules {
		c := *m
		c.PageCount = s.pageCount(m.ID)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) AddPages(ctx context.Context, moduleID string, pages []PageDef) ([]ModulePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range pages {
		for _, p := range s.pages {
			if p.ModuleID == moduleID && p.Name == def.Name {
				return nil, apperrors.Conflict(apperrors.CodeDuplicatePage, "page already exists")
			}
		}
	}
	return s.insertPages(moduleID, pages), nil
}

func (s *memStore) SetModuleActive(ctx context.Context, id string, active bool) (*Module, error) {
	s.mu.Lock()
	m, ok := s.modules[id]
	if ok {
		m.IsActive = active
	}
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("module", id)
	}
	return s.GetModule(ctx, id)
}

func (s *memStore) DeleteModule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[id]; !ok {
		return apperrors.NotFound("module", id)
	}
	for _, mods := range s.assigned {
		if _, ok := mods[id]; ok {
			return apperrors.BusinessRule(apperrors.CodeModuleInUse, "module is assigned")
		}
	}
	for pid, p := range s.pages {
		if p.ModuleID != id {
			continue
		}
		for _, g := range s.grants {
			delete(g, pid)
		}
		for _, o := range s.overrides {
			delete(o, pid)
		}
		delete(s.pages, pid)
	}
	delete(s.modules, id)
	return nil
}

func (s *memStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, apperrors.NotFound("organization", id)
	}
	out := *org
	return &out, nil
}

func (s *memStore) GetAssignment(ctx context.Context, orgID, moduleID string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.assigned[orgID][moduleID]
	if !ok {
		return nil, nil
	}
	m := s.modules[moduleID]
	return &Assignment{ModuleID: moduleID, ModuleName: m.Name, ModuleDisplayName: m.DisplayName, IsEnabled: enabled}, nil
}

func (s *memStore) UpsertAssignment(ctx context.Context, orgID, moduleID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.assigned[orgID] == nil {
		s.assigned[orgID] = make(map[string]bool)
	}
	s.assigned[orgID][moduleID] = enabled
	return nil
}

func (s *memStore) ListAssignments(ctx context.Context, orgID string) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Assignment
	for id, enabled := range s.assigned[orgID] {
		m := s.modules[id]
		out = append(out, Assignment{ModuleID: id, ModuleName: m.Name, ModuleDisplayName: m.DisplayName, IsEnabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleName < out[j].ModuleName })
	return out, nil
}

func (s *memStore) RemoveAssignmentsExcept(ctx context.Context, orgID string, keep []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var removed []string
	for id := range s.assigned[orgID] {
		if !kept[id] {
			delete(s.assigned[orgID], id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

func (s *memStore) UpsertPageGrants(ctx context.Context, orgID string, grantedBy *string, grants []PageGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range grants {
		if _, ok := s.pages[g.ModulePageID]; !ok {
			return apperrors.NotFound("module page", g.ModulePageID)
		}
	}
	if s.grants[orgID] == nil {
		s.grants[orgID] = make(map[string]permissions.Flags)
	}
	for _, g := range grants {
		s.grants[orgID][g.ModulePageID] = g.Flags
	}
	return nil
}

func (s *memStore) ListPageGrants(ctx context.Context, orgID string) ([]OrganizationPageGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrganizationPageGrant
	for pid, f := range s.grants[orgID] {
		p := s.pages[pid]
		m := s.modules[p.ModuleID]
		out = append(out, OrganizationPageGrant{
			ModulePageID: pid, PageName: p.Name, PageDisplayName: p.DisplayName, PageRoutePath: p.RoutePath,
			ModuleName: m.Name, ModuleDisplayName: m.DisplayName, Flags: f,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModulePageID < out[j].ModulePageID })
	return out, nil
}

func (s *memStore) UpsertUserOverride(ctx context.Context, userID, pageID string, grantedBy *string, o permissions.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[pageID]; !ok {
		return apperrors.NotFound("module page", pageID)
	}
	if s.overrides[userID] == nil {
		s.overrides[userID] = make(map[string]permissions.Override)
	}
	s.overrides[userID][pageID] = o
	return nil
}

func (s *memStore) DeleteUserOverride(ctx context.Context, userID, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[userID][pageID]; !ok {
		return apperrors.NotFound("user override", pageID)
	}
	delete(s.overrides[userID], pageID)
	return nil
}

// permissions.Store

func (s *memStore) Snapshot(ctx context.Context, orgID, userID, moduleName, pageName string) (permissions.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.moduleByName(moduleName)
	if m == nil {
		return permissions.Snapshot{}, nil
	}
	snap := permissions.Snapshot{ModuleEnabled: s.assigned[orgID][m.ID]}
	for _, p := range s.pages {
		if p.ModuleID != m.ID || p.Name != pageName || !p.IsActive {
			continue
		}
		snap.PageFound = true
		snap.PageID = p.ID
		if g, ok := s.grants[orgID][p.ID]; ok {
			snap.OrgGrant = &g
		}
		if o, ok := s.overrides[userID][p.ID]; ok {
			snap.UserOverride = &o
		}
	}
	return snap, nil
}

func (s *memStore) ModuleForOrganization(ctx context.Context, orgID, moduleName string) (permissions.ModuleRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.moduleByName(moduleName)
	if m == nil {
		return permissions.ModuleRef{Name: moduleName}, nil
	}
	return permissions.ModuleRef{ID: m.ID, Name: m.Name, Exists: true, Enabled: s.assigned[orgID][m.ID]}, nil
}

func (s *memStore) ActivePages(ctx context.Context, moduleID string) ([]permissions.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permissions.Page
	for _, p := range s.pages {
		if p.ModuleID == moduleID && p.IsActive {
			out = append(out, permissions.Page{ID: p.ID, Name: p.Name, DisplayName: p.DisplayName,
				RoutePath: p.RoutePath, Icon: p.Icon, RequiresID: p.RequiresID, SortOrder: p.SortOrder})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (s *memStore) OrganizationGrants(ctx context.Context, orgID, moduleID string) (map[string]permissions.Flags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]permissions.Flags)
	for pid, f := range s.grants[orgID] {
		if s.pages[pid].ModuleID == moduleID {
			out[pid] = f
		}
	}
	return out, nil
}

func (s *memStore) UserOverrides(ctx context.Context, userID, moduleID string) (map[string]permissions.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]permissions.Override)
	for pid, o := range s.overrides[userID] {
		if s.pages[pid].ModuleID == moduleID {
			out[pid] = o
		}
	}
	return out, nil
}

func (s *memStore) ReachableModules(ctx context.Context, orgID string, all bool) ([]permissions.ModuleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permissions.ModuleSummary
	for _, m := range s.modules {
		if all || s.assigned[orgID][m.ID] {
			out = append(out, permissions.ModuleSummary{ID: m.ID, Name: m.Name, DisplayName: m.DisplayName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) PagesForModules(ctx context.Context, moduleIDs []string) (map[string][]permissions.Page, error) {
	out := make(map[string][]permissions.Page)
	for _, id := range moduleIDs {
		pages, _ := s.ActivePages(ctx, id)
		if len(pages) > 0 {
			out[id] = pages
		}
	}
	return out, nil
}

func (s *memStore) OrganizationPageGrants(ctx context.Context, orgID string) (map[string]permissions.Flags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]permissions.Flags)
	for pid, f := range s.grants[orgID] {
		out[pid] = f
	}
	return out, nil
}

func (s *memStore) UserPageOverrides(ctx context.Context, userID string) (map[string]permissions.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]permissions.Override)
	for pid, o := range s.overrides[userID] {
		out[pid] = o
	}
	return out, nil
}

// fakeProvisioner records calls and can be made to fail. check runs before
// the call is recorded so tests can assert on store state at that moment.
type fakeProvisioner struct {
	mu    sync.Mutex
	calls []string
	err   error
	check func(slug, module string)
}

func (p *fakeProvisioner) ProvisionModuleTables(ctx context.Context, slug, module string) error {
	if p.check != nil {
		p.check(slug, module)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, slug+"/"+module)
	return p.err
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInvalidator) InvalidateOrganization(ctx context.Context, orgID string) {
	r.add("org:" + orgID)
}

func (r *recordingInvalidator) InvalidateUser(ctx context.Context, userID string) {
	r.add("user:" + userID)
}

func (r *recordingInvalidator) InvalidateAll(ctx context.Context) {
	r.add("all")
}

func (r *recordingInvalidator) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingInvalidator) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
