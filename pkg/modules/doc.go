// Package modules manages the module registry and its assignment to
// organizations.
//
// A module is a named feature area ("booking", "pos") with pages. The
// Manager registers modules, enables and disables them per organization,
// and writes organization page grants and user overrides. Enabling a
// module provisions its tables in the tenant namespace before the
// assignment becomes visible.
//
// Every write invalidates the permission cache for the affected scope.
//
// The bundled catalog.yaml supplies display metadata and default pages for
// known modules; CatalogWatcher reloads an override file at runtime.
package modules
