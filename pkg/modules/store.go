package modules

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/permissions"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// Store persists modules, assignments and grants in the control plane
type Store interface {
	CreateModule(ctx context.Context, m *Module, pages []PageDef) (*ModuleWithPages, error)
	GetModule(ctx context.Context, id string) (*Module, error)
	ListModules(ctx context.Context) ([]Module, error)
	AddPages(ctx context.Context, moduleID string, pages []PageDef) ([]ModulePage, error)
	SetModuleActive(ctx context.Context, id string, active bool) (*Module, error)

	// DeleteModule removes the module with its pages and every grant on
	// them, refusing with ModuleInUse while any organization references it
	DeleteModule(ctx context.Context, id string) error

	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetAssignment(ctx context.Context, orgID, moduleID string) (*Assignment, error)
	UpsertAssignment(ctx context.Context, orgID, moduleID string, enabled bool) error
	ListAssignments(ctx context.Context, orgID string) ([]Assignment, error)

	// RemoveAssignmentsExcept deletes the organization's assignments for
	// modules outside keep and returns the removed module ids
	RemoveAssignmentsExcept(ctx context.Context, orgID string, keep []string) ([]string, error)

	UpsertPageGrants(ctx context.Context, orgID string, grantedBy *string, grants []PageGrant) error
	ListPageGrants(ctx context.Context, orgID string) ([]OrganizationPageGrant, error)
	UpsertUserOverride(ctx context.Context, userID, pageID string, grantedBy *string, o permissions.Override) error
	DeleteUserOverride(ctx context.Context, userID, pageID string) error
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateModule inserts the module and its pages in one transaction
func (s *PostgresStore) CreateModule(ctx context.Context, m *Module, pages []PageDef) (*ModuleWithPages, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO modules (name, display_name, description, icon, category, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id, is_active, created_at
	`
	err = tx.QueryRowContext(ctx, query, m.Name, m.DisplayName, m.Description, m.Icon, m.Category).
		Scan(&m.ID, &m.IsActive, &m.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, apperrors.Conflict(apperrors.CodeDuplicateModule,
				fmt.Sprintf("module %s already exists", m.Name))
		}
		return nil, apperrors.Classify(err, "failed to create module")
	}

	created, err := insertPages(ctx, tx, m.ID, pages)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Classify(err, "failed to commit transaction")
	}

	m.PageCount = len(created)
	return &ModuleWithPages{Module: *m, Pages: created}, nil
}

func insertPages(ctx context.Context, tx *sql.Tx, moduleID string, pages []PageDef) ([]ModulePage, error) {
	query := `
		INSERT INTO module_pages (module_id, name, display_name, description, route_path, icon, requires_id, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_active, created_at
	`
	created := make([]ModulePage, 0, len(pages))
	for _, def := range pages {
		page := ModulePage{ModuleID: moduleID, PageDef: def}
		err := tx.QueryRowContext(ctx, query, moduleID, def.Name, def.DisplayName, def.Description,
			def.RoutePath, def.Icon, def.RequiresID, def.SortOrder).
			Scan(&page.ID, &page.IsActive, &page.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return nil, apperrors.Conflict(apperrors.CodeDuplicatePage,
					fmt.Sprintf("page %s already exists in module", def.Name))
			}
			return nil, apperrors.Classify(err, "failed to create module page")
		}
		created = append(created, page)
	}
	return created, nil
}

// GetModule retrieves a module by ID
func (s *PostgresStore) GetModule(ctx context.Context, id string) (*Module, error) {
	query := `
		SELECT m.id, m.name, m.display_name, COALESCE(m.description, ''), COALESCE(m.category, ''),
		       COALESCE(m.icon, ''), m.is_active, m.created_at,
		       (SELECT COUNT(*) FROM module_pages mp WHERE mp.module_id = m.id)
		FROM modules m
		WHERE m.id = $1
	`
	m := &Module{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.DisplayName, &m.Description, &m.Category,
		&m.Icon, &m.IsActive, &m.CreatedAt, &m.PageCount,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("module", id)
	}
	if err != nil {
		return nil, apperrors.Classify(err, "failed to get module")
	}
	return m, nil
}

// ListModules lists every module with its page count
func (s *PostgresStore) ListModules(ctx context.Context) ([]Module, error) {
	query := `
		SELECT m.id, m.name, m.display_name, COALESCE(m.description, ''), COALESCE(m.category, ''),
		       COALESCE(m.icon, ''), m.is_active, m.created_at, COUNT(mp.id)
		FROM modules m
		LEFT JOIN module_pages mp ON mp.module_id = m.id
		GROUP BY m.id
		ORDER BY m.name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list modules")
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &m.Description, &m.Category,
			&m.Icon, &m.IsActive, &m.CreatedAt, &m.PageCount); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddPages appends pages to an existing module in one transaction
func (s *PostgresStore) AddPages(ctx context.Context, moduleID string, pages []PageDef) ([]ModulePage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	created, err := insertPages(ctx, tx, moduleID, pages)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.Classify(err, "failed to commit transaction")
	}
	return created, nil
}

// SetModuleActive flips the module's active flag
func (s *PostgresStore) SetModuleActive(ctx context.Context, id string, active bool) (*Module, error) {
	result, err := s.db.ExecContext(ctx, "UPDATE modules SET is_active = $2 WHERE id = $1", id, active)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to update module")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperrors.NotFound("module", id)
	}
	return s.GetModule(ctx, id)
}

// DeleteModule implements Store
func (s *PostgresStore) DeleteModule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	// lock the module row so a concurrent assignment cannot slip in
	var name string
	err = tx.QueryRowContext(ctx, "SELECT name FROM modules WHERE id = $1 FOR UPDATE", id).Scan(&name)
	if err == sql.ErrNoRows {
		return apperrors.NotFound("module", id)
	}
	if err != nil {
		return apperrors.Classify(err, "failed to lock module")
	}

	var assigned int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM organization_modules WHERE module_id = $1", id,
	).Scan(&assigned); err != nil {
		return apperrors.Classify(err, "failed to count assignments")
	}
	if assigned > 0 {
		return apperrors.BusinessRule(apperrors.CodeModuleInUse,
			fmt.Sprintf("module %s is assigned to %d organization(s); remove the assignments first", name, assigned))
	}

	stmts := []string{
		"DELETE FROM user_module_page_permissions WHERE module_page_id IN (SELECT id FROM module_pages WHERE module_id = $1)",
		"DELETE FROM organization_module_pages WHERE module_page_id IN (SELECT id FROM module_pages WHERE module_id = $1)",
		"DELETE FROM module_pages WHERE module_id = $1",
		"DELETE FROM modules WHERE id = $1",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return apperrors.Classify(err, "failed to delete module")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Classify(err, "failed to commit transaction")
	}
	return nil
}

// GetOrganization retrieves the id, slug and state of an organization
func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, slug, is_active FROM organizations WHERE id = $1", id,
	).Scan(&org.ID, &org.Slug, &org.IsActive)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("organization", id)
	}
	if err != nil {
		return nil, apperrors.Classify(err, "failed to get organization")
	}
	return org, nil
}

// GetAssignment returns the organization's assignment of a module, or nil
// when there is none
func (s *PostgresStore) GetAssignment(ctx context.Context, orgID, moduleID string) (*Assignment, error) {
	query := `
		SELECT om.module_id, m.name, m.display_name, om.is_enabled, om.granted_at
		FROM organization_modules om
		JOIN modules m ON m.id = om.module_id
		WHERE om.organization_id = $1 AND om.module_id = $2
	`
	a := &Assignment{}
	err := s.db.QueryRowContext(ctx, query, orgID, moduleID).
		Scan(&a.ModuleID, &a.ModuleName, &a.ModuleDisplayName, &a.IsEnabled, &a.GrantedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Classify(err, "failed to get assignment")
	}
	return a, nil
}

// UpsertAssignment creates or updates the organization's assignment
func (s *PostgresStore) UpsertAssignment(ctx context.Context, orgID, moduleID string, enabled bool) error {
	query := `
		INSERT INTO organization_modules (organization_id, module_id, is_enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, module_id)
		DO UPDATE SET is_enabled = EXCLUDED.is_enabled, granted_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, orgID, moduleID, enabled); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperrors.NotFound("module", moduleID)
		}
		return apperrors.Classify(err, "failed to save assignment")
	}
	return nil
}

// ListAssignments lists the organization's module assignments
func (s *PostgresStore) ListAssignments(ctx context.Context, orgID string) ([]Assignment, error) {
	query := `
		SELECT om.module_id, m.name, m.display_name, om.is_enabled, om.granted_at
		FROM organization_modules om
		JOIN modules m ON m.id = om.module_id
		WHERE om.organization_id = $1
		ORDER BY m.name
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list assignments")
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ModuleID, &a.ModuleName, &a.ModuleDisplayName, &a.IsEnabled, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RemoveAssignmentsExcept implements Store
func (s *PostgresStore) RemoveAssignmentsExcept(ctx context.Context, orgID string, keep []string) ([]string, error) {
	query := `
		DELETE FROM organization_modules
		WHERE organization_id = $1 AND NOT (module_id::text = ANY($2))
		RETURNING module_id
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, pq.Array(keep))
	if err != nil {
		return nil, apperrors.Classify(err, "failed to remove assignments")
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan module id: %w", err)
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}

// UpsertPageGrants merges grants into the organization's page grants in
// one transaction
func (s *PostgresStore) UpsertPageGrants(ctx context.Context, orgID string, grantedBy *string, grants []PageGrant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO organization_module_pages (organization_id, module_page_id, can_read, can_write, can_delete, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, module_page_id)
		DO UPDATE SET can_read = EXCLUDED.can_read,
		              can_write = EXCLUDED.can_write,
		              can_delete = EXCLUDED.can_delete,
		              granted_by = EXCLUDED.granted_by,
		              granted_at = now()
	`
	for _, g := range grants {
		if _, err := tx.ExecContext(ctx, query, orgID, g.ModulePageID, g.CanRead, g.CanWrite, g.CanDelete, grantedBy); err != nil {
			if postgres.IsForeignKeyViolation(err) {
				return apperrors.NotFound("module page", g.ModulePageID)
			}
			return apperrors.Classify(err, "failed to save page grant")
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Classify(err, "failed to commit transaction")
	}
	return nil
}

// ListPageGrants lists the organization's page grants with page and module names
func (s *PostgresStore) ListPageGrants(ctx context.Context, orgID string) ([]OrganizationPageGrant, error) {
	query := `
		SELECT omp.module_page_id, mp.name, mp.display_name, mp.route_path,
		       m.name, m.display_name,
		       omp.can_read, omp.can_write, omp.can_delete, omp.granted_by, omp.granted_at
		FROM organization_module_pages omp
		JOIN module_pages mp ON mp.id = omp.module_page_id
		JOIN modules m ON m.id = mp.module_id
		WHERE omp.organization_id = $1
		ORDER BY m.name, mp.sort_order, mp.name
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list page grants")
	}
	defer rows.Close()

	var out []OrganizationPageGrant
	for rows.Next() {
		var g OrganizationPageGrant
		var grantedBy sql.NullString
		if err := rows.Scan(&g.ModulePageID, &g.PageName, &g.PageDisplayName, &g.PageRoutePath,
			&g.ModuleName, &g.ModuleDisplayName,
			&g.CanRead, &g.CanWrite, &g.CanDelete, &grantedBy, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page grant: %w", err)
		}
		if grantedBy.Valid {
			g.GrantedBy = &grantedBy.String
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertUserOverride creates or replaces the user's override for one page
func (s *PostgresStore) UpsertUserOverride(ctx context.Context, userID, pageID string, grantedBy *string, o permissions.Override) error {
	query := `
		INSERT INTO user_module_page_permissions (user_id, module_page_id, can_read, can_write, can_delete, granted_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, module_page_id)
		DO UPDATE SET can_read = EXCLUDED.can_read,
		              can_write = EXCLUDED.can_write,
		              can_delete = EXCLUDED.can_delete,
		              granted_by = EXCLUDED.granted_by,
		              granted_at = now()
	`
	_, err := s.db.ExecContext(ctx, query, userID, pageID,
		nullBool(o.CanRead), nullBool(o.CanWrite), nullBool(o.CanDelete), grantedBy)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperrors.NotFound("user or module page", userID+"/"+pageID)
		}
		return apperrors.Classify(err, "failed to save user override")
	}
	return nil
}

// DeleteUserOverride removes the user's override so the page defers to the
// organization grant again
func (s *PostgresStore) DeleteUserOverride(ctx context.Context, userID, pageID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_module_page_permissions WHERE user_id = $1 AND module_page_id = $2",
		userID, pageID,
	)
	if err != nil {
		return apperrors.Classify(err, "failed to delete user override")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperrors.NotFound("user override", userID+"/"+pageID)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
