package permissions

import (
	"fmt"
	"strings"
)

// Action is one of the three grantable operations on a page
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// ParseAction accepts read, write or delete in any case
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRead, ActionWrite, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Reason explains a Decision
type Reason string

const (
	ReasonSuperAdminBypass Reason = "SuperAdminBypass"
	ReasonNoOrganization   Reason = "NoOrganization"
	ReasonModuleNotEnabled Reason = "ModuleNotEnabled"
	ReasonPageNotFound     Reason = "PageNotFound"
	ReasonGranted          Reason = "Granted"
	ReasonDenied           Reason = "Denied"
)

// Decision is the outcome of resolving one (principal, module, page, action) tuple
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

func allow(r Reason) Decision { return Decision{Allowed: true, Reason: r} }
func deny(r Reason) Decision  { return Decision{Allowed: false, Reason: r} }

// Flags is a fully resolved read/write/delete triple
type Flags struct {
	CanRead   bool `json:"canRead"`
	CanWrite  bool `json:"canWrite"`
	CanDelete bool `json:"canDelete"`
}

// AllFlags grants every action
var AllFlags = Flags{CanRead: true, CanWrite: true, CanDelete: true}

// Allows reports the flag governing action
func (f Flags) Allows(action Action) bool {
	switch action {
	case ActionRead:
		return f.CanRead
	case ActionWrite:
		return f.CanWrite
	case ActionDelete:
		return f.CanDelete
	}
	return false
}

// Apply merges a user override onto organization flags. Each set field of
// the override replaces the matching organization field; unset fields keep
// the organization value.
func (f Flags) Apply(o *Override) Flags {
	if o == nil {
		return f
	}
	if o.CanRead != nil {
		f.CanRead = *o.CanRead
	}
	if o.CanWrite != nil {
		f.CanWrite = *o.CanWrite
	}
	if o.CanDelete != nil {
		f.CanDelete = *o.CanDelete
	}
	return f
}

// Override is a user-level grant. A nil field defers to the organization.
type Override struct {
	CanRead   *bool `json:"canRead"`
	CanWrite  *bool `json:"canWrite"`
	CanDelete *bool `json:"canDelete"`
}

// IsEmpty reports whether no field is set
func (o Override) IsEmpty() bool {
	return o.CanRead == nil && o.CanWrite == nil && o.CanDelete == nil
}

// Snapshot is everything the decision needs for one (org, user, module, page)
// tuple, fetched in one pass from the control plane
type Snapshot struct {
	ModuleEnabled bool      `json:"moduleEnabled"`
	PageFound     bool      `json:"pageFound"`
	PageID        string    `json:"pageId,omitempty"`
	OrgGrant      *Flags    `json:"orgGrant,omitempty"`
	UserOverride  *Override `json:"userOverride,omitempty"`
}

// Page is an active module page as the resolver sees it
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	RoutePath   string `json:"routePath"`
	Icon        string `json:"icon,omitempty"`
	RequiresID  bool   `json:"requiresId"`
	SortOrder   int    `json:"sortOrder"`
}

// PageAccess is a page with the caller's resolved flags
type PageAccess struct {
	Page
	Flags
}

// ModuleSummary is a module as listed to callers
type ModuleSummary struct {
	ID          string `json:"moduleId"`
	Name        string `json:"moduleName"`
	DisplayName string `json:"displayName"`
}

// ModuleRef identifies a module and its enablement for one organization
type ModuleRef struct {
	ID      string
	Name    string
	Exists  bool
	Enabled bool
}
