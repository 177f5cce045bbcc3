package permissions

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/principal"
)

// Resolver answers permission questions for principals
type Resolver struct {
	store   Store
	cache   Cache
	metrics *observability.Metrics
	log     *logrus.Logger
}

// ResolverConfig holds the optional collaborators of a Resolver
type ResolverConfig struct {
	Cache   Cache
	Metrics *observability.Metrics
	Logger  *logrus.Logger
}

// NewResolver creates a resolver over store
func NewResolver(store Store, cfg ResolverConfig) *Resolver {
	if cfg.Cache == nil {
		cfg.Cache = NoCache{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Resolver{
		store:   store,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

// Resolve decides whether p may perform action on a module page. Denial is
// a normal result; only store failures return an error.
func (r *Resolver) Resolve(ctx context.Context, p principal.Principal, moduleName, pageName string, action Action) (Decision, error) {
	if d, decided := Gate(p, true); decided {
		r.metrics.RecordDecision(string(d.Reason))
		return d, nil
	}

	snap, err := r.snapshot(ctx, p, moduleName, pageName)
	if err != nil {
		return Decision{}, err
	}

	d := Evaluate(p, snap, action)
	r.metrics.RecordDecision(string(d.Reason))
	return d, nil
}

// Flags resolves all three actions for one page at once
func (r *Resolver) Flags(ctx context.Context, p principal.Principal, moduleName, pageName string) (Flags, Reason, error) {
	if d, decided := Gate(p, true); decided {
		if d.Allowed {
			return AllFlags, d.Reason, nil
		}
		return Flags{}, d.Reason, nil
	}

	snap, err := r.snapshot(ctx, p, moduleName, pageName)
	if err != nil {
		return Flags{}, "", err
	}
	d := Evaluate(p, snap, ActionRead)
	if d.Reason == ReasonModuleNotEnabled || d.Reason == ReasonPageNotFound {
		return Flags{}, d.Reason, nil
	}
	return EffectiveFlags(snap.OrgGrant, snap.UserOverride), d.Reason, nil
}

func (r *Resolver) snapshot(ctx context.Context, p principal.Principal, moduleName, pageName string) (Snapshot, error) {
	key := SnapshotKey{OrgID: p.OrgID(), UserID: p.UserID, Module: moduleName, Page: pageName}

	m := memoFromContext(ctx)
	if snap, ok := m.get(key); ok {
		return snap, nil
	}

	snap, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		r.metrics.RecordCacheLookup(r.cache.Backend(), true)
		m.put(key, snap)
		return snap, nil
	case !errors.Is(err, ErrCacheMiss):
		r.log.WithError(err).WithField("key", key.String()).Warn("permission cache read failed")
	}
	r.metrics.RecordCacheLookup(r.cache.Backend(), false)

	snap, err = r.store.Snapshot(ctx, key.OrgID, key.UserID, moduleName, pageName)
	if err != nil {
		return Snapshot{}, apperrors.Classify(err, "failed to resolve permissions")
	}

	if err := r.cache.Set(ctx, key, snap); err != nil {
		r.log.WithError(err).WithField("key", key.String()).Warn("permission cache write failed")
	}
	m.put(key, snap)
	return snap, nil
}

// ModuleAccess is the caller's view of one module
type ModuleAccess struct {
	Module   string       `json:"module"`
	Decision Decision     `json:"decision"`
	Pages    []PageAccess `json:"pages"`
}

// ListPages resolves every active page of a module for p in one pass: the
// pages, the organization grants and the user overrides are each fetched
// once. An unknown module is NotFound except for super-admins, who are
// allowed with no pages; a module the caller cannot reach returns the
// gating decision and no pages.
func (r *Resolver) ListPages(ctx context.Context, p principal.Principal, moduleName string) (*ModuleAccess, error) {
	ref, err := r.store.ModuleForOrganization(ctx, p.OrgID(), moduleName)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to resolve module")
	}
	if !ref.Exists {
		if p.IsSuperAdmin {
			r.metrics.RecordDecision(string(ReasonSuperAdminBypass))
			return &ModuleAccess{Module: moduleName, Decision: allow(ReasonSuperAdminBypass), Pages: []PageAccess{}}, nil
		}
		return nil, apperrors.NotFound("module", moduleName)
	}

	access := &ModuleAccess{Module: ref.Name, Pages: []PageAccess{}}
	d, decided := Gate(p, ref.Enabled)
	if decided && !d.Allowed {
		access.Decision = d
		r.metrics.RecordDecision(string(d.Reason))
		return access, nil
	}

	var (
		pages     []Page
		orgGrants map[string]Flags
		overrides map[string]Override
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pages, err = r.store.ActivePages(gctx, ref.ID)
		return err
	})
	if !p.IsSuperAdmin {
		g.Go(func() error {
			var err error
			orgGrants, err = r.store.OrganizationGrants(gctx, p.OrgID(), ref.ID)
			return err
		})
		g.Go(func() error {
			var err error
			overrides, err = r.store.UserOverrides(gctx, p.UserID, ref.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Classify(err, "failed to list module pages")
	}

	access.Decision = Decision{Allowed: true, Reason: ReasonGranted}
	if p.IsSuperAdmin {
		access.Decision = d
	}
	for _, page := range pages {
		flags := AllFlags
		if !p.IsSuperAdmin {
			flags = mergeListed(orgGrants, overrides, page.ID)
		}
		access.Pages = append(access.Pages, PageAccess{Page: page, Flags: flags})
	}
	r.metrics.RecordDecision(string(access.Decision.Reason))
	return access, nil
}

// ModulePermissions is one module the caller can reach, with its pages.
// The module flags are the union of the page flags.
type ModulePermissions struct {
	ModuleSummary
	Flags
	Pages []PageAccess `json:"pages"`
}

// ListModules resolves every module p can reach with four batched reads:
// the modules, their pages, the organization grants and the user
// overrides. Super-admins see every module with all flags; a principal
// without an organization sees none.
func (r *Resolver) ListModules(ctx context.Context, p principal.Principal) ([]ModulePermissions, error) {
	out := []ModulePermissions{}
	if d, decided := Gate(p, true); decided && !d.Allowed {
		r.metrics.RecordDecision(string(d.Reason))
		return out, nil
	}

	summaries, err := r.store.ReachableModules(ctx, p.OrgID(), p.IsSuperAdmin)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list modules")
	}
	if len(summaries) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(summaries))
	for _, m := range summaries {
		ids = append(ids, m.ID)
	}

	var (
		pages     map[string][]Page
		orgGrants map[string]Flags
		overrides map[string]Override
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pages, err = r.store.PagesForModules(gctx, ids)
		return err
	})
	if !p.IsSuperAdmin {
		g.Go(func() error {
			var err error
			orgGrants, err = r.store.OrganizationPageGrants(gctx, p.OrgID())
			return err
		})
		g.Go(func() error {
			var err error
			overrides, err = r.store.UserPageOverrides(gctx, p.UserID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Classify(err, "failed to list module permissions")
	}

	for _, m := range summaries {
		mp := ModulePermissions{ModuleSummary: m, Pages: []PageAccess{}}
		if p.IsSuperAdmin {
			mp.Flags = AllFlags
		}
		for _, page := range pages[m.ID] {
			flags := AllFlags
			if !p.IsSuperAdmin {
				flags = mergeListed(orgGrants, overrides, page.ID)
			}
			mp.CanRead = mp.CanRead || flags.CanRead
			mp.CanWrite = mp.CanWrite || flags.CanWrite
			mp.CanDelete = mp.CanDelete || flags.CanDelete
			mp.Pages = append(mp.Pages, PageAccess{Page: page, Flags: flags})
		}
		out = append(out, mp)
	}
	return out, nil
}

// mergeListed applies the listing rule: a user row, when present, replaces
// the organization row field by field
func mergeListed(org map[string]Flags, user map[string]Override, pageID string) Flags {
	var orgGrant *Flags
	if f, ok := org[pageID]; ok {
		orgGrant = &f
	}
	var override *Override
	if o, ok := user[pageID]; ok {
		override = &o
	}
	return EffectiveFlags(orgGrant, override)
}

// AccessResult answers an access check against a module's default page
type AccessResult struct {
	HasAccess bool   `json:"hasAccess"`
	CanRead   bool   `json:"canRead"`
	CanWrite  bool   `json:"canWrite"`
	CanDelete bool   `json:"canDelete"`
	Reason    Reason `json:"reason"`
	Page      string `json:"page,omitempty"`
}

// AccessCheck resolves p against the module's default page, the active page
// with the lowest sort order. Super-admins are allowed without a lookup,
// whether or not the module exists; for everyone else unknown modules are
// NotFound.
func (r *Resolver) AccessCheck(ctx context.Context, p principal.Principal, moduleName string) (*AccessResult, error) {
	if p.IsSuperAdmin {
		r.metrics.RecordDecision(string(ReasonSuperAdminBypass))
		return newAccessResult(AllFlags, ReasonSuperAdminBypass, ""), nil
	}

	ref, err := r.store.ModuleForOrganization(ctx, p.OrgID(), moduleName)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to resolve module")
	}
	if !ref.Exists {
		return nil, apperrors.NotFound("module", moduleName)
	}

	if d, decided := Gate(p, ref.Enabled); decided {
		r.metrics.RecordDecision(string(d.Reason))
		if d.Allowed {
			return newAccessResult(AllFlags, d.Reason, ""), nil
		}
		return newAccessResult(Flags{}, d.Reason, ""), nil
	}

	pages, err := r.store.ActivePages(ctx, ref.ID)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list module pages")
	}
	if len(pages) == 0 {
		r.metrics.RecordDecision(string(ReasonPageNotFound))
		return newAccessResult(Flags{}, ReasonPageNotFound, ""), nil
	}

	page := pages[0].Name
	flags, reason, err := r.Flags(ctx, p, moduleName, page)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordDecision(string(reason))
	return newAccessResult(flags, reason, page), nil
}

func newAccessResult(f Flags, reason Reason, page string) *AccessResult {
	return &AccessResult{
		HasAccess: f.CanRead,
		CanRead:   f.CanRead,
		CanWrite:  f.CanWrite,
		CanDelete: f.CanDelete,
		Reason:    reason,
		Page:      page,
	}
}

// InvalidateOrganization drops cached snapshots for every user of an organization
func (r *Resolver) InvalidateOrganization(ctx context.Context, orgID string) {
	if err := r.cache.InvalidateOrganization(ctx, orgID); err != nil {
		r.log.WithError(err).WithField("organization_id", orgID).Warn("permission cache invalidation failed")
	}
}

// InvalidateUser drops cached snapshots for one user
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) {
	if err := r.cache.InvalidateUser(ctx, userID); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Warn("permission cache invalidation failed")
	}
}

// InvalidateAll drops every cached snapshot
func (r *Resolver) InvalidateAll(ctx context.Context) {
	if err := r.cache.InvalidateAll(ctx); err != nil {
		r.log.WithError(err).Warn("permission cache invalidation failed")
	}
}

// memo holds the snapshots already fetched during one request
type memo struct {
	mu    sync.Mutex
	snaps map[SnapshotKey]Snapshot
}

func memoFromContext(ctx context.Context) *memo {
	m, _ := ctx.Value(contextkeys.PermissionMemoKey).(*memo)
	return m
}

func (m *memo) get(k SnapshotKey) (Snapshot, bool) {
	if m == nil {
		return Snapshot{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[k]
	return s, ok
}

func (m *memo) put(k SnapshotKey, s Snapshot) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snaps[k] = s
	m.mu.Unlock()
}

// WithMemo scopes snapshot lookups so each tuple is fetched at most once
// for the lifetime of ctx
func WithMemo(ctx context.Context) context.Context {
	if memoFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, contextkeys.PermissionMemoKey, &memo{snaps: make(map[SnapshotKey]Snapshot)})
}

// MemoMiddleware gives every request its own snapshot memo
func MemoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		next.ServeHTTP(w, req.WithContext(WithMemo(req.Context())))
	})
}
