// Package orgs manages the organizations (tenants) of the platform.
//
// # Lifecycle
//
// Creating an organization inserts the organization row and its first admin
// user (bcrypt-hashed password, role "admin") in one transaction and then
// creates the tenant namespace named after the slug with its baseline tables.
// A namespace failure removes the organization again.
//
// Deactivation is soft: the organization and its users are flagged inactive
// and everything else is kept.
//
// Deletion is permanent and runs in this order:
//
//  1. revoke page grants, user overrides and module assignments
//  2. delete the organization's users and the organization row
//  3. close the tenant connection pool
//  4. drop the tenant namespace
//
// # Usage
//
//	svc := orgs.NewService(orgs.NewPostgresStore(db), orgs.ServiceConfig{
//		Namespaces:  provisioner,
//		Pools:       gateway,
//		Invalidator: resolver,
//		Audit:       auditLogger,
//	})
//	res, err := svc.CreateOrganization(ctx, actor, orgs.CreateOrgRequest{
//		Name:          "Club Norte",
//		AdminEmail:    "admin@clubnorte.example",
//		AdminName:     "Ana",
//		AdminPassword: "s3cret-pass",
//	})
package orgs
