package modules

import (
	"time"

	"github.com/platinummonkey/tenantgate/pkg/permissions"
)

// Module is a registered feature area
type Module struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	IsActive    bool      `json:"isActive"`
	PageCount   int       `json:"pageCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PageDef describes a page to create under a module
type PageDef struct {
	Name        string `yaml:"name" json:"name"`
	DisplayName string `yaml:"display_name" json:"displayName"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	RoutePath   string `yaml:"route_path" json:"routePath"`
	Icon        string `yaml:"icon,omitempty" json:"icon,omitempty"`
	RequiresID  bool   `yaml:"requires_id,omitempty" json:"requiresId"`
	SortOrder   int    `yaml:"sort_order" json:"sortOrder"`
}

// ModulePage is a stored page of a module
type ModulePage struct {
	ID       string `json:"id"`
	ModuleID string `json:"moduleId"`
	PageDef
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// ModuleWithPages is a module together with its pages
type ModuleWithPages struct {
	Module
	Pages []ModulePage `json:"pages"`
}

// RegisterRequest is the input of Manager.RegisterModule. A nil Pages
// falls back to the catalog's default page set for Name.
type RegisterRequest struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Icon        string    `json:"icon"`
	Pages       []PageDef `json:"pages,omitempty"`
}

// Organization is the slice of an organization the lifecycle manager needs
type Organization struct {
	ID       string
	Slug     string
	IsActive bool
}

// Assignment is an organization's relation to one module
type Assignment struct {
	ModuleID          string    `json:"moduleId"`
	ModuleName        string    `json:"moduleName"`
	ModuleDisplayName string    `json:"moduleDisplayName"`
	IsEnabled         bool      `json:"isEnabled"`
	GrantedAt         time.Time `json:"grantedAt"`
}

// PageGrant sets an organization's default flags for one page
type PageGrant struct {
	ModulePageID string `json:"modulePageId"`
	permissions.Flags
}

// OrganizationPageGrant is a stored grant joined with its page and module
type OrganizationPageGrant struct {
	ModulePageID      string `json:"modulePageId"`
	PageName          string `json:"pageName"`
	PageDisplayName   string `json:"pageDisplayName"`
	PageRoutePath     string `json:"pageRoutePath"`
	ModuleName        string `json:"moduleName"`
	ModuleDisplayName string `json:"moduleDisplayName"`
	permissions.Flags
	GrantedBy *string   `json:"grantedBy,omitempty"`
	GrantedAt time.Time `json:"grantedAt"`
}
