package permissions

import "github.com/platinummonkey/tenantgate/pkg/principal"

// Evaluate decides an action from already-fetched state. It never fails:
// missing rows are denials.
func Evaluate(p principal.Principal, s Snapshot, action Action) Decision {
	if p.IsSuperAdmin {
		return allow(ReasonSuperAdminBypass)
	}
	if !p.HasOrganization() {
		return deny(ReasonNoOrganization)
	}
	if !s.ModuleEnabled {
		return deny(ReasonModuleNotEnabled)
	}
	if !s.PageFound {
		return deny(ReasonPageNotFound)
	}
	if EffectiveFlags(s.OrgGrant, s.UserOverride).Allows(action) {
		return allow(ReasonGranted)
	}
	return deny(ReasonDenied)
}

// EffectiveFlags merges an organization grant with a user override.
// A missing organization grant counts as all false.
func EffectiveFlags(org *Flags, user *Override) Flags {
	var base Flags
	if org != nil {
		base = *org
	}
	return base.Apply(user)
}

// Gate reports the decision that precedes any page-level lookup: the
// super-admin bypass, the organization requirement and module enablement.
// decided is false when the request must go on to page resolution.
func Gate(p principal.Principal, moduleEnabled bool) (d Decision, decided bool) {
	switch {
	case p.IsSuperAdmin:
		return allow(ReasonSuperAdminBypass), true
	case !p.HasOrganization():
		return deny(ReasonNoOrganization), true
	case !moduleEnabled:
		return deny(ReasonModuleNotEnabled), true
	}
	return Decision{}, false
}
