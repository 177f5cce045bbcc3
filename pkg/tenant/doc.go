// Package tenant manages the per-organization Postgres namespaces.
//
// Each organization owns one schema named after its slug. The Provisioner
// creates the schema, the baseline tables and the tables of every module the
// organization enables; all of its DDL is idempotent and safe to re-run.
//
// The Gateway gives request handlers query access to exactly one namespace.
// It keeps a pgx pool per tenant whose connections are opened with
// search_path pinned to the tenant schema:
//
//	courts, err := tenant.Query(ctx, gw, "club-norte", func(ctx context.Context, q tenant.Querier) ([]Court, error) {
//		rows, err := q.Query(ctx, "SELECT id, name FROM courts")
//		...
//	})
//
// Slugs are validated before they reach SQL and always quoted as identifiers.
package tenant
