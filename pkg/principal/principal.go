// Package principal turns inbound bearer tokens into verified principals.
//
// Tokens are HS256 JWTs minted by the identity provider (or by
// tenantgate-admin token for development). The payload carries the user id
// as the subject plus email, optional organization id/slug and the
// super-admin flag. Everything downstream trusts a Principal found in the
// request context as already verified.
package principal

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// Principal is the authenticated actor of a request
type Principal struct {
	UserID           string  `json:"userId"`
	Email            string  `json:"email,omitempty"`
	OrganizationID   *string `json:"organizationId,omitempty"`
	OrganizationSlug string  `json:"organizationSlug,omitempty"`
	IsSuperAdmin     bool    `json:"isSuperAdmin"`
	TokenID          string  `json:"tokenId,omitempty"`
}

// HasOrganization reports whether the principal belongs to an organization
func (p Principal) HasOrganization() bool {
	return p.OrganizationID != nil && *p.OrganizationID != ""
}

// OrgID returns the organization id or the empty string
func (p Principal) OrgID() string {
	if p.OrganizationID == nil {
		return ""
	}
	return *p.OrganizationID
}

// ActorID returns a pointer to the user id for audit and granted_by columns
func (p Principal) ActorID() *string {
	if p.UserID == "" {
		return nil
	}
	id := p.UserID
	return &id
}

// WithPrincipal attaches p to ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, p)
	return contextkeys.WithUserID(ctx, p.UserID)
}

// FromContext extracts the principal attached by the middleware
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	return p, ok
}
