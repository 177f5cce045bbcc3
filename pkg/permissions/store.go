package permissions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Store reads the control-plane state the resolver decides on
type Store interface {
	// Snapshot fetches module enablement, the active page and both grant
	// layers for one tuple. An unknown module yields a zero Snapshot.
	Snapshot(ctx context.Context, orgID, userID, moduleName, pageName string) (Snapshot, error)

	// ModuleForOrganization reports whether the module exists and is enabled
	ModuleForOrganization(ctx context.Context, orgID, moduleName string) (ModuleRef, error)

	// ActivePages lists a module's active pages by sort order
	ActivePages(ctx context.Context, moduleID string) ([]Page, error)

	// OrganizationGrants returns the organization's grants for a module keyed by page id
	OrganizationGrants(ctx context.Context, orgID, moduleID string) (map[string]Flags, error)

	// UserOverrides returns the user's overrides for a module keyed by page id
	UserOverrides(ctx context.Context, userID, moduleID string) (map[string]Override, error)

	// ReachableModules lists the modules enabled for an active organization,
	// or every module when all is set, by name
	ReachableModules(ctx context.Context, orgID string, all bool) ([]ModuleSummary, error)

	// PagesForModules lists the active pages of several modules keyed by module id
	PagesForModules(ctx context.Context, moduleIDs []string) (map[string][]Page, error)

	// OrganizationPageGrants returns every grant of the organization keyed by page id
	OrganizationPageGrants(ctx context.Context, orgID string) (map[string]Flags, error)

	// UserPageOverrides returns every override of the user keyed by page id
	UserPageOverrides(ctx context.Context, userID string) (map[string]Override, error)
}

// PostgresStore implements Store over the control-plane database
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store reading from db
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Snapshot implements Store in a single round trip. A deactivated
// organization or user sees every module as not enabled.
func (s *PostgresStore) Snapshot(ctx context.Context, orgID, userID, moduleName, pageName string) (Snapshot, error) {
	query := `
		SELECT COALESCE(om.is_enabled, false) AND COALESCE(o.is_active, false) AND COALESCE(u.is_active, true),
		       mp.id,
		       omp.can_read, omp.can_write, omp.can_delete,
		       ump.id IS NOT NULL, ump.can_read, ump.can_write, ump.can_delete
		FROM modules m
		LEFT JOIN organizations o ON o.id = $1
		LEFT JOIN users u ON u.id = $2
		LEFT JOIN organization_modules om
		       ON om.module_id = m.id AND om.organization_id = $1
		LEFT JOIN module_pages mp
		       ON mp.module_id = m.id AND mp.name = $4 AND mp.is_active
		LEFT JOIN organization_module_pages omp
		       ON omp.module_page_id = mp.id AND omp.organization_id = $1
		LEFT JOIN user_module_page_permissions ump
		       ON ump.module_page_id = mp.id AND ump.user_id = $2
		WHERE m.name = $3
	`

	var (
		snap                      Snapshot
		pageID                    sql.NullString
		orgRead, orgWrite, orgDel sql.NullBool
		hasOverride               bool
		usrRead, usrWrite, usrDel sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, query, nullableID(orgID), nullableID(userID), moduleName, pageName).Scan(
		&snap.ModuleEnabled,
		&pageID,
		&orgRead, &orgWrite, &orgDel,
		&hasOverride, &usrRead, &usrWrite, &usrDel,
	)
	if err == sql.ErrNoRows {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load permission snapshot: %w", err)
	}

	if pageID.Valid {
		snap.PageFound = true
		snap.PageID = pageID.String
	}
	if orgRead.Valid {
		snap.OrgGrant = &Flags{CanRead: orgRead.Bool, CanWrite: orgWrite.Bool, CanDelete: orgDel.Bool}
	}
	if hasOverride {
		snap.UserOverride = &Override{
			CanRead:   nullBoolPtr(usrRead),
			CanWrite:  nullBoolPtr(usrWrite),
			CanDelete: nullBoolPtr(usrDel),
		}
	}
	return snap, nil
}

// ModuleForOrganization implements Store
func (s *PostgresStore) ModuleForOrganization(ctx context.Context, orgID, moduleName string) (ModuleRef, error) {
	query := `
		SELECT m.id, m.name, COALESCE(om.is_enabled, false) AND COALESCE(o.is_active, false)
		FROM modules m
		LEFT JOIN organizations o ON o.id = $1
		LEFT JOIN organization_modules om
		       ON om.module_id = m.id AND om.organization_id = $1
		WHERE m.name = $2
	`

	ref := ModuleRef{Name: moduleName}
	err := s.db.QueryRowContext(ctx, query, nullableID(orgID), moduleName).Scan(&ref.ID, &ref.Name, &ref.Enabled)
	if err == sql.ErrNoRows {
		return ref, nil
	}
	if err != nil {
		return ModuleRef{}, fmt.Errorf("failed to look up module %s: %w", moduleName, err)
	}
	ref.Exists = true
	return ref, nil
}

// ActivePages implements Store
func (s *PostgresStore) ActivePages(ctx context.Context, moduleID string) ([]Page, error) {
	query := `
		SELECT id, name, display_name, route_path, COALESCE(icon, ''), requires_id, sort_order
		FROM module_pages
		WHERE module_id = $1 AND is_active
		ORDER BY sort_order, name
	`

	rows, err := s.db.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list module pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.RoutePath, &p.Icon, &p.RequiresID, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan module page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// OrganizationGrants implements Store
func (s *PostgresStore) OrganizationGrants(ctx context.Context, orgID, moduleID string) (map[string]Flags, error) {
	query := `
		SELECT omp.module_page_id, omp.can_read, omp.can_write, omp.can_delete
		FROM organization_module_pages omp
		JOIN module_pages mp ON mp.id = omp.module_page_id
		WHERE omp.organization_id = $1 AND mp.module_id = $2
	`

	rows, err := s.db.QueryContext(ctx, query, orgID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization grants: %w", err)
	}
	defer rows.Close()

	grants := make(map[string]Flags)
	for rows.Next() {
		var pageID string
		var f Flags
		if err := rows.Scan(&pageID, &f.CanRead, &f.CanWrite, &f.CanDelete); err != nil {
			return nil, fmt.Errorf("failed to scan organization grant: %w", err)
		}
		grants[pageID] = f
	}
	return grants, rows.Err()
}

// UserOverrides implements Store
func (s *PostgresStore) UserOverrides(ctx context.Context, userID, moduleID string) (map[string]Override, error) {
	query := `
		SELECT ump.module_page_id, ump.can_read, ump.can_write, ump.can_delete
		FROM user_module_page_permissions ump
		JOIN module_pages mp ON mp.id = ump.module_page_id
		WHERE ump.user_id = $1 AND mp.module_id = $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]Override)
	for rows.Next() {
		var pageID string
		var r, w, d sql.NullBool
		if err := rows.Scan(&pageID, &r, &w, &d); err != nil {
			return nil, fmt.Errorf("failed to scan user override: %w", err)
		}
		overrides[pageID] = Override{
			CanRead:   nullBoolPtr(r),
			CanWrite:  nullBoolPtr(w),
			CanDelete: nullBoolPtr(d),
		}
	}
	return overrides, rows.Err()
}

// ReachableModules implements Store
func (s *PostgresStore) ReachableModules(ctx context.Context, orgID string, all bool) ([]ModuleSummary, error) {
	query := `
		SELECT m.id, m.name, m.display_name
		FROM modules m
		JOIN organization_modules om ON om.module_id = m.id AND om.is_enabled
		JOIN organizations o ON o.id = om.organization_id AND o.is_active
		WHERE om.organization_id = $1
		ORDER BY m.name
	`
	args := []interface{}{orgID}
	if all {
		query = `SELECT m.id, m.name, m.display_name FROM modules m ORDER BY m.name`
		args = nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reachable modules: %w", err)
	}
	defer rows.Close()

	var out []ModuleSummary
	for rows.Next() {
		var m ModuleSummary
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PagesForModules implements Store
func (s *PostgresStore) PagesForModules(ctx context.Context, moduleIDs []string) (map[string][]Page, error) {
	query := `
		SELECT module_id, id, name, display_name, route_path, COALESCE(icon, ''), requires_id, sort_order
		FROM module_pages
		WHERE module_id = ANY($1) AND is_active
		ORDER BY module_id, sort_order, name
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(moduleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list module pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string][]Page)
	for rows.Next() {
		var moduleID string
		var p Page
		if err := rows.Scan(&moduleID, &p.ID, &p.Name, &p.DisplayName, &p.RoutePath, &p.Icon, &p.RequiresID, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan module page: %w", err)
		}
		pages[moduleID] = append(pages[moduleID], p)
	}
	return pages, rows.Err()
}

// OrganizationPageGrants implements Store
func (s *PostgresStore) OrganizationPageGrants(ctx context.Context, orgID string) (map[string]Flags, error) {
	query := `
		SELECT module_page_id, can_read, can_write, can_delete
		FROM organization_module_pages
		WHERE organization_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization grants: %w", err)
	}
	defer rows.Close()

	grants := make(map[string]Flags)
	for rows.Next() {
		var pageID string
		var f Flags
		if err := rows.Scan(&pageID, &f.CanRead, &f.CanWrite, &f.CanDelete); err != nil {
			return nil, fmt.Errorf("failed to scan organization grant: %w", err)
		}
		grants[pageID] = f
	}
	return grants, rows.Err()
}

// UserPageOverrides implements Store
func (s *PostgresStore) UserPageOverrides(ctx context.Context, userID string) (map[string]Override, error) {
	query := `
		SELECT module_page_id, can_read, can_write, can_delete
		FROM user_module_page_permissions
		WHERE user_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]Override)
	for rows.Next() {
		var pageID string
		var r, w, d sql.NullBool
		if err := rows.Scan(&pageID, &r, &w, &d); err != nil {
			return nil, fmt.Errorf("failed to scan user override: %w", err)
		}
		overrides[pageID] = Override{
			CanRead:   nullBoolPtr(r),
			CanWrite:  nullBoolPtr(w),
			CanDelete: nullBoolPtr(d),
		}
	}
	return overrides, rows.Err()
}

func nullBoolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

// nullableID maps an empty id to NULL so uuid columns never see an empty string
func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
