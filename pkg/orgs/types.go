package orgs

import (
	"net/mail"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/tenant"
)

// OrgType classifies the kind of business an organization runs
type OrgType string

const (
	OrgTypeClub    OrgType = "club"
	OrgTypeGym     OrgType = "gym"
	OrgTypeSpa     OrgType = "spa"
	OrgTypeGeneric OrgType = "generic"
)

// RoleAdmin is the control-plane role given to an organization's first user
const RoleAdmin = "admin"

// MinPasswordLength is the shortest admin password accepted on creation
const MinPasswordLength = 8

// Organization is a tenant of the platform. Its slug names the tenant
// namespace and never changes after creation.
type Organization struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Type      OrgType        `json:"type"`
	Domain    *string        `json:"domain,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
	IsActive  bool           `json:"isActive"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// AdminUser is the first user created with an organization
type AdminUser struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

// CreateOrgRequest represents a request to create an organization
type CreateOrgRequest struct {
	Name          string         `json:"name"`
	Slug          string         `json:"slug,omitempty"`
	Type          OrgType        `json:"type,omitempty"`
	Domain        string         `json:"domain,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
	AdminEmail    string         `json:"adminEmail"`
	AdminName     string         `json:"adminName"`
	AdminPassword string         `json:"adminPassword"`
}

// CreateOrgResult is returned by CreateOrganization
type CreateOrgResult struct {
	Organization *Organization `json:"organization"`
	AdminUser    *AdminUser    `json:"adminUser"`
}

// Normalize fills the slug from the name when absent and defaults the type
func (r *CreateOrgRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.AdminEmail = strings.ToLower(strings.TrimSpace(r.AdminEmail))
	if r.Slug == "" {
		r.Slug = generateSlug(r.Name)
	}
	if r.Type == "" {
		r.Type = OrgTypeClub
	}
}

// Validate checks the request after Normalize
func (r *CreateOrgRequest) Validate() error {
	if r.Name == "" {
		return apperrors.InvalidField("name", "is required")
	}
	if err := tenant.ValidateSlug(r.Slug); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(r.AdminEmail); err != nil {
		return apperrors.InvalidField("adminEmail", "must be a valid email address")
	}
	if strings.TrimSpace(r.AdminName) == "" {
		return apperrors.InvalidField("adminName", "is required")
	}
	if len(r.AdminPassword) < MinPasswordLength {
		return apperrors.InvalidField("adminPassword", "must be at least 8 characters")
	}
	return nil
}

// generateSlug derives a namespace slug from a display name
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	if len(slug) > tenant.MaxSlugLength {
		slug = slug[:tenant.MaxSlugLength]
	}
	return strings.Trim(slug, "-")
}
