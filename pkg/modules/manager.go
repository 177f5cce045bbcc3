package modules

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
)

// Provisioner creates the tenant tables a module needs
type Provisioner interface {
	ProvisionModuleTables(ctx context.Context, slug, module string) error
}

// Invalidator drops cached permission snapshots after grant changes
type Invalidator interface {
	InvalidateOrganization(ctx context.Context, orgID string)
	InvalidateUser(ctx context.Context, userID string)
	InvalidateAll(ctx context.Context)
}

// ManagerConfig wires a Manager. Catalog defaults to the bundled catalog,
// Audit to a no-op logger.
type ManagerConfig struct {
	Catalog     *Catalog
	Provisioner Provisioner
	Invalidator Invalidator
	Audit       audit.Logger
	Logger      *logrus.Logger
}

// Manager mutates the module registry and the grants the permission
// resolver reads
type Manager struct {
	store       Store
	catalog     *Catalog
	provisioner Provisioner
	invalidator Invalidator
	audit       audit.Logger
	log         *logrus.Logger
}

// NewManager creates a lifecycle manager over store
func NewManager(store Store, cfg ManagerConfig) *Manager {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOp()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Invalidator == nil {
		cfg.Invalidator = noopInvalidator{}
	}
	return &Manager{
		store:       store,
		catalog:     cfg.Catalog,
		provisioner: cfg.Provisioner,
		invalidator: cfg.Invalidator,
		audit:       cfg.Audit,
		log:         cfg.Logger,
	}
}

// Catalog returns the catalog the manager fills defaults from
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// RegisterModule creates a module and its pages. Missing display metadata
// and a nil page list are filled from the catalog; a module the catalog
// does not know gets zero pages.
func (m *Manager) RegisterModule(ctx context.Context, actor *string, req RegisterRequest) (*ModuleWithPages, error) {
	if !namePattern.MatchString(req.Name) {
		return nil, apperrors.InvalidField("name", "must be lowercase letters, digits, '-' or '_'")
	}

	entry, known := m.catalog.Lookup(req.Name)
	mod := &Module{
		Name:        req.Name,
		DisplayName: firstNonEmpty(req.DisplayName, entry.DisplayName),
		Description: firstNonEmpty(req.Description, entry.Description),
		Category:    firstNonEmpty(req.Category, entry.Category),
		Icon:        firstNonEmpty(req.Icon, entry.Icon),
	}
	if mod.DisplayName == "" {
		return nil, apperrors.InvalidField("displayName", "is required")
	}

	defs := req.Pages
	if defs == nil && known {
		defs = entry.Pages
	}
	pages, err := normalizePages(req.Name, defs)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	created, err := m.store.CreateModule(ctx, mod, pages)
	if err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleRegister, actor, audit.ResourceTypeModule, req.Name,
			fmt.Sprintf("register module %s", req.Name), err)
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"module": created.Name,
		"pages":  len(created.Pages),
	}).Info("module registered")
	m.record(ctx, audit.EventTypeModuleRegister, actor, audit.ResourceTypeModule, created.ID,
		&audit.ChangeDetails{After: map[string]interface{}{"name": created.Name, "pages": len(created.Pages)}},
		fmt.Sprintf("registered module %s", created.Name))

	// snapshots may have cached PageNotFound for this name
	m.invalidator.InvalidateAll(ctx)
	return created, nil
}

// AddPages appends pages to an existing module
func (m *Manager) AddPages(ctx context.Context, actor *string, moduleID string, defs []PageDef) ([]ModulePage, error) {
	if len(defs) == 0 {
		return nil, apperrors.InvalidField("pages", "at least one page is required")
	}
	mod, err := m.store.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	pages, err := normalizePages(mod.Name, defs)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	created, err := m.store.AddPages(ctx, moduleID, pages)
	if err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleRegister, actor, audit.ResourceTypeModulePage, moduleID,
			fmt.Sprintf("add pages to module %s", mod.Name), err)
		return nil, err
	}

	names := make([]string, 0, len(created))
	for _, p := range created {
		names = append(names, p.Name)
	}
	m.record(ctx, audit.EventTypeModuleRegister, actor, audit.ResourceTypeModulePage, moduleID,
		&audit.ChangeDetails{After: map[string]interface{}{"pages": names}},
		fmt.Sprintf("added %d page(s) to module %s", len(created), mod.Name))

	m.invalidator.InvalidateAll(ctx)
	return created, nil
}

// ListModules lists every module with its page count
func (m *Manager) ListModules(ctx context.Context) ([]Module, error) {
	return m.store.ListModules(ctx)
}

// DeleteModule removes a module that no organization references
func (m *Manager) DeleteModule(ctx context.Context, actor *string, moduleID string) error {
	if err := m.store.DeleteModule(ctx, moduleID); err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleDelete, actor, audit.ResourceTypeModule, moduleID,
			fmt.Sprintf("delete module %s", moduleID), err)
		return err
	}

	m.log.WithField("module_id", moduleID).Info("module deleted")
	m.record(ctx, audit.EventTypeModuleDelete, actor, audit.ResourceTypeModule, moduleID, nil,
		fmt.Sprintf("deleted module %s", moduleID))

	m.invalidator.InvalidateAll(ctx)
	return nil
}

// ToggleModuleActive flips the module's active flag. Existing assignments
// keep working; an inactive module cannot be newly assigned.
func (m *Manager) ToggleModuleActive(ctx context.Context, actor *string, moduleID string, active bool) (*Module, error) {
	mod, err := m.store.SetModuleActive(ctx, moduleID, active)
	if err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleToggle, actor, audit.ResourceTypeModule, moduleID,
			fmt.Sprintf("set module %s active=%t", moduleID, active), err)
		return nil, err
	}

	m.record(ctx, audit.EventTypeModuleToggle, actor, audit.ResourceTypeModule, moduleID,
		&audit.ChangeDetails{After: map[string]interface{}{"isActive": active}},
		fmt.Sprintf("set module %s active=%t", mod.Name, active))
	return mod, nil
}

// EnableModuleForOrganization provisions the module's tenant tables and
// then enables the assignment. A provisioning failure leaves no enabled
// assignment behind.
func (m *Manager) EnableModuleForOrganization(ctx context.Context, actor *string, orgID, moduleID string) error {
	org, err := m.store.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	mod, err := m.store.GetModule(ctx, moduleID)
	if err != nil {
		return err
	}

	if !mod.IsActive {
		existing, err := m.store.GetAssignment(ctx, orgID, moduleID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperrors.BusinessRule(apperrors.CodeModuleInactive,
				fmt.Sprintf("module %s is inactive and cannot be assigned", mod.Name))
		}
	}

	if m.provisioner != nil {
		if err := m.provisioner.ProvisionModuleTables(ctx, org.Slug, mod.Name); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"tenant": org.Slug,
				"module": mod.Name,
			}).Error("module not enabled: provisioning failed")
			m.recordFailure(ctx, audit.EventTypeModuleEnable, actor, audit.ResourceTypeOrganizationModule, moduleID,
				fmt.Sprintf("enable module %s for %s", mod.Name, org.Slug), err)
			return err
		}
	}

	if err := m.store.UpsertAssignment(ctx, orgID, moduleID, true); err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleEnable, actor, audit.ResourceTypeOrganizationModule, moduleID,
			fmt.Sprintf("enable module %s for %s", mod.Name, org.Slug), err)
		return err
	}

	m.record(ctx, audit.EventTypeModuleEnable, actor, audit.ResourceTypeOrganizationModule, moduleID, nil,
		fmt.Sprintf("enabled module %s for %s", mod.Name, org.Slug))
	m.invalidator.InvalidateOrganization(ctx, orgID)
	return nil
}

// DisableModuleForOrganization masks the module for the organization. Page
// grants and user overrides are kept so re-enabling restores them.
func (m *Manager) DisableModuleForOrganization(ctx context.Context, actor *string, orgID, moduleID string) error {
	existing, err := m.store.GetAssignment(ctx, orgID, moduleID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperrors.NotFound("module assignment", moduleID)
	}
	if err := m.store.UpsertAssignment(ctx, orgID, moduleID, false); err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleDisable, actor, audit.ResourceTypeOrganizationModule, moduleID,
			fmt.Sprintf("disable module %s for organization %s", existing.ModuleName, orgID), err)
		return err
	}

	m.record(ctx, audit.EventTypeModuleDisable, actor, audit.ResourceTypeOrganizationModule, moduleID, nil,
		fmt.Sprintf("disabled module %s for organization %s", existing.ModuleName, orgID))
	m.invalidator.InvalidateOrganization(ctx, orgID)
	return nil
}

// ReplaceOrganizationModules makes moduleIDs the organization's enabled set.
// Listed modules are enabled one by one (provision first); assignments of
// modules outside the set are removed. Finer grants are kept.
func (m *Manager) ReplaceOrganizationModules(ctx context.Context, actor *string, orgID string, moduleIDs []string) ([]Assignment, error) {
	if _, err := m.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	keep := dedupe(moduleIDs)
	for _, id := range keep {
		if err := m.EnableModuleForOrganization(ctx, actor, orgID, id); err != nil {
			return nil, err
		}
	}

	removed, err := m.store.RemoveAssignmentsExcept(ctx, orgID, keep)
	if err != nil {
		m.recordFailure(ctx, audit.EventTypeModuleDisable, actor, audit.ResourceTypeOrganization, orgID,
			fmt.Sprintf("remove unlisted modules from organization %s", orgID), err)
		return nil, err
	}
	for _, id := range removed {
		m.record(ctx, audit.EventTypeModuleDisable, actor, audit.ResourceTypeOrganizationModule, id, nil,
			fmt.Sprintf("removed module %s from organization %s", id, orgID))
	}
	if len(removed) > 0 {
		m.invalidator.InvalidateOrganization(ctx, orgID)
	}

	return m.store.ListAssignments(ctx, orgID)
}

// OrganizationModules lists the organization's assignments
func (m *Manager) OrganizationModules(ctx context.Context, orgID string) ([]Assignment, error) {
	if _, err := m.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return m.store.ListAssignments(ctx, orgID)
}

// SetOrganizationPagePermissions merges grants into the organization's
// page grants
func (m *Manager) SetOrganizationPagePermissions(ctx context.Context, actor *string, orgID string, grants []PageGrant) error {
	if len(grants) == 0 {
		return apperrors.InvalidField("grants", "at least one grant is required")
	}
	for _, g := range grants {
		if g.ModulePageID == "" {
			return apperrors.InvalidField("modulePageId", "is required")
		}
	}
	if _, err := m.store.GetOrganization(ctx, orgID); err != nil {
		return err
	}

	if err := m.store.UpsertPageGrants(ctx, orgID, actor, grants); err != nil {
		m.recordFailure(ctx, audit.EventTypeAuthzPermissionGrant, actor, audit.ResourceTypeOrganization, orgID,
			fmt.Sprintf("organization %s page grants", orgID), err)
		return err
	}

	for _, g := range grants {
		m.record(ctx, audit.EventTypeAuthzPermissionGrant, actor, audit.ResourceTypeModulePage, g.ModulePageID,
			&audit.ChangeDetails{After: flagsMap(g.Flags)},
			fmt.Sprintf("organization %s page grant updated", orgID))
	}
	m.invalidator.InvalidateOrganization(ctx, orgID)
	return nil
}

// OrganizationPageGrants lists the organization's page grants
func (m *Manager) OrganizationPageGrants(ctx context.Context, orgID string) ([]OrganizationPageGrant, error) {
	if _, err := m.store.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return m.store.ListPageGrants(ctx, orgID)
}

// SetUserPagePermission stores a per-user override for one page. Unset
// fields defer to the organization grant.
func (m *Manager) SetUserPagePermission(ctx context.Context, actor *string, userID, pageID string, o permissions.Override) error {
	if err := m.store.UpsertUserOverride(ctx, userID, pageID, actor, o); err != nil {
		m.recordFailure(ctx, audit.EventTypeAuthzPermissionGrant, actor, audit.ResourceTypeUser, userID,
			fmt.Sprintf("user override on page %s", pageID), err)
		return err
	}

	m.record(ctx, audit.EventTypeAuthzPermissionGrant, actor, audit.ResourceTypeUser, userID,
		&audit.ChangeDetails{After: overrideMap(pageID, o)},
		fmt.Sprintf("user override set on page %s", pageID))
	m.invalidator.InvalidateUser(ctx, userID)
	return nil
}

// RevokeUserPagePermission removes a user's override for one page
func (m *Manager) RevokeUserPagePermission(ctx context.Context, actor *string, userID, pageID string) error {
	if err := m.store.DeleteUserOverride(ctx, userID, pageID); err != nil {
		m.recordFailure(ctx, audit.EventTypeAuthzPermissionRevoke, actor, audit.ResourceTypeUser, userID,
			fmt.Sprintf("revoke user override on page %s", pageID), err)
		return err
	}

	m.record(ctx, audit.EventTypeAuthzPermissionRevoke, actor, audit.ResourceTypeUser, userID,
		&audit.ChangeDetails{Before: map[string]interface{}{"modulePageId": pageID}},
		fmt.Sprintf("user override revoked on page %s", pageID))
	m.invalidator.InvalidateUser(ctx, userID)
	return nil
}

func (m *Manager) record(ctx context.Context, eventType audit.EventType, actor *string, resourceType audit.ResourceType, resourceID string, changes *audit.ChangeDetails, message string) {
	if err := m.audit.LogDataMutation(ctx, eventType, actor, resourceType, resourceID, changes, message); err != nil {
		m.log.WithError(err).WithField("event_type", eventType).Warn("failed to record audit entry")
	}
}

// recordFailure audits a mutation that was attempted and did not happen
func (m *Manager) recordFailure(ctx context.Context, eventType audit.EventType, actor *string, resourceType audit.ResourceType, resourceID string, attempt string, cause error) {
	message := fmt.Sprintf("%s failed: %v", attempt, cause)
	if err := m.audit.LogAuthorization(ctx, eventType, actor, resourceType, resourceID, audit.EventStatusFailure, message); err != nil {
		m.log.WithError(err).WithField("event_type", eventType).Warn("failed to record audit entry")
	}
}

func flagsMap(f permissions.Flags) map[string]interface{} {
	return map[string]interface{}{
		"canRead":   f.CanRead,
		"canWrite":  f.CanWrite,
		"canDelete": f.CanDelete,
	}
}

func overrideMap(pageID string, o permissions.Override) map[string]interface{} {
	out := map[string]interface{}{"modulePageId": pageID}
	if o.CanRead != nil {
		out["canRead"] = *o.CanRead
	}
	if o.CanWrite != nil {
		out["canWrite"] = *o.CanWrite
	}
	if o.CanDelete != nil {
		out["canDelete"] = *o.CanDelete
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateOrganization(context.Context, string) {}

func (noopInvalidator) InvalidateUser(context.Context, string) {}

func (noopInvalidator) InvalidateAll(context.Context) {}
