// Package permissions decides what a principal may do on a module page.
//
// # Layers
//
// A decision walks these layers in order and stops at the first that settles it:
//
//  1. Super-admins are allowed everything, including modules that do not exist.
//  2. A principal without an organization is denied (NoOrganization).
//  3. The module must be assigned and enabled for the organization (ModuleNotEnabled).
//  4. The page must exist and be active (PageNotFound).
//  5. The organization grant for the page supplies read/write/delete; no grant means all false.
//  6. A user override replaces the organization value for each field it sets.
//     Unset override fields keep the organization value.
//
// Disabling a module for an organization masks the finer grants below it
// without deleting them, so re-enabling restores prior access.
//
// # Usage
//
//	resolver := permissions.NewResolver(permissions.NewPostgresStore(db), permissions.ResolverConfig{
//		Cache:   permissions.NewMemoryCache(10000, time.Minute),
//		Metrics: metrics,
//		Logger:  log,
//	})
//
//	d, err := resolver.Resolve(ctx, p, "booking", "reservations", permissions.ActionWrite)
//	if err != nil {
//		return err // store failure
//	}
//	if !d.Allowed {
//		return apperrors.Denied(string(d.Reason), "access denied")
//	}
//
// Evaluate is the pure decision function underneath Resolve and can be
// exercised directly with a Snapshot fixture.
//
// # Tenant routes
//
// Middleware.TenantScope pins a request to its {orgSlug} route variable and
// Middleware.Require guards a handler with one (module, page, action) check:
//
//	tenant := router.PathPrefix("/org/{orgSlug}").Subrouter()
//	tenant.Use(mw.TenantScope)
//	tenant.Handle("/booking/courts", mw.Require("booking", "courts", permissions.ActionRead)(list))
//
// # Caching
//
// Snapshots are cached per (organization, user, module, page) in memory or
// Redis. The lifecycle manager invalidates by organization, by user or
// entirely whenever it writes grants, pages or assignments. Within a single
// request MemoMiddleware guarantees each tuple is fetched at most once.
package permissions
