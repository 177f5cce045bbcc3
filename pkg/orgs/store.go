package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
)

// Store persists organizations and their users in the control plane
type Store interface {
	// CreateWithAdmin inserts the organization and its admin user in one
	// transaction
	CreateWithAdmin(ctx context.Context, org *Organization, admin *AdminUser, hashedPassword string) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	ListOrganizations(ctx context.Context, includeInactive bool) ([]*Organization, error)
	Deactivate(ctx context.Context, id string) (*Organization, error)

	// RevokeGrants removes the module assignments and page grants of the
	// organization and the overrides of its users. The organization row
	// and its users are kept.
	RevokeGrants(ctx context.Context, id string) error

	// Delete revokes every grant held by the organization and its users,
	// removes its non super-admin users and deletes the organization row
	Delete(ctx context.Context, id string) error
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, slug, type, domain, settings, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var domain sql.NullString
	var settingsJSON []byte
	if err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.Type, &domain, &settingsJSON,
		&org.IsActive, &org.CreatedAt, &org.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if domain.Valid {
		org.Domain = &domain.String
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return org, nil
}

// CreateWithAdmin creates an organization and its admin user
func (s *PostgresStore) CreateWithAdmin(ctx context.Context, org *Organization, admin *AdminUser, hashedPassword string) error {
	settings := org.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO organizations (name, slug, type, domain, settings, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id, is_active, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, org.Name, org.Slug, org.Type, org.Domain, settingsJSON).
		Scan(&org.ID, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeDuplicateOrganization,
				fmt.Sprintf("organization slug %s is already taken", org.Slug))
		}
		return apperrors.Classify(err, "failed to create organization")
	}

	query = `
		INSERT INTO users (email, name, hashed_password, organization_id, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query, admin.Email, admin.Name, hashedPassword, org.ID, admin.Role).
		Scan(&admin.ID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperrors.Conflict(apperrors.CodeDuplicateEmail,
				fmt.Sprintf("a user with email %s already exists", admin.Email))
		}
		return apperrors.Classify(err, "failed to create admin user")
	}
	admin.OrganizationID = org.ID
	org.Settings = settings

	if err := tx.Commit(); err != nil {
		return apperrors.Classify(err, "failed to commit organization")
	}
	return nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+orgColumns+" FROM organizations WHERE id = $1", id)
	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("organization", id)
	}
	if err != nil {
		return nil, apperrors.Classify(err, "failed to get organization")
	}
	return org, nil
}

// ListOrganizations lists organizations ordered by creation time
func (s *PostgresStore) ListOrganizations(ctx context.Context, includeInactive bool) ([]*Organization, error) {
	query := "SELECT " + orgColumns + " FROM organizations"
	if !includeInactive {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list organizations")
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Classify(err, "failed to list organizations")
	}
	return orgs, nil
}

// Deactivate marks the organization inactive and deactivates its users
func (s *PostgresStore) Deactivate(ctx context.Context, id string) (*Organization, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		UPDATE organizations SET is_active = false, updated_at = now()
		WHERE id = $1
		RETURNING `+orgColumns, id)
	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("organization", id)
	}
	if err != nil {
		return nil, apperrors.Classify(err, "failed to deactivate organization")
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET is_active = false, updated_at = now() WHERE organization_id = $1", id,
	); err != nil {
		return nil, apperrors.Classify(err, "failed to deactivate organization users")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Classify(err, "failed to commit deactivation")
	}
	return org, nil
}

// RevokeGrants implements Store
func (s *PostgresStore) RevokeGrants(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := revokeGrants(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Classify(err, "failed to commit grant revocation")
	}
	return nil
}

// revokeGrants deletes the grants of the organization and returns the ids
// of its non super-admin users
func revokeGrants(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	var userIDs []string
	rows, err := tx.QueryContext(ctx, `
		SELECT u.id FROM users u
		WHERE u.organization_id = $1
		  AND NOT EXISTS (SELECT 1 FROM super_admins sa WHERE sa.user_id = u.id)
	`, id)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list organization users")
	}
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		userIDs = append(userIDs, uid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.Classify(err, "failed to list organization users")
	}

	stmts := []struct {
		query string
		arg   any
	}{
		{"DELETE FROM user_module_page_permissions WHERE user_id = ANY($1)", pq.Array(userIDs)},
		{"DELETE FROM organization_module_pages WHERE organization_id = $1", id},
		{"DELETE FROM organization_modules WHERE organization_id = $1", id},
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.arg); err != nil {
			return nil, apperrors.Classify(err, "failed to revoke organization grants")
		}
	}
	return userIDs, nil
}

// Delete removes the organization and everything granted to it
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Classify(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	userIDs, err := revokeGrants(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ANY($1)", pq.Array(userIDs)); err != nil {
		return apperrors.Classify(err, "failed to delete organization users")
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM organizations WHERE id = $1", id)
	if err != nil {
		return apperrors.Classify(err, "failed to delete organization")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("organization", id)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Classify(err, "failed to commit organization delete")
	}
	return nil
}
