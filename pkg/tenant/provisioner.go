package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/apperrors"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// DefaultProvisionTimeout bounds a single provisioning transaction
const DefaultProvisionTimeout = 2 * time.Minute

// Provisioning operation names used in metrics and logs
const (
	OpNamespaceCreate = "namespace_create"
	OpTablesProvision = "tables_provision"
	OpNamespaceDrop   = "namespace_drop"
)

// ProvisionerConfig configures a Provisioner. Zero values fall back to
// defaults: the built-in table sets, a no-op audit logger, no metrics.
type ProvisionerConfig struct {
	Tables  map[string]TableSet
	Audit   audit.Logger
	Metrics *observability.Metrics
	Logger  *logrus.Logger
	Timeout time.Duration
}

// Provisioner creates and tears down tenant namespaces in the control-plane
// database. All DDL is idempotent and runs inside one transaction per call.
type Provisioner struct {
	db      *sql.DB
	tables  map[string]TableSet
	audit   audit.Logger
	metrics *observability.Metrics
	log     *logrus.Logger
	timeout time.Duration
}

// NewProvisioner creates a provisioner on db
func NewProvisioner(db *sql.DB, cfg ProvisionerConfig) *Provisioner {
	if cfg.Tables == nil {
		cfg.Tables = DefaultTableSets()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOp()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProvisionTimeout
	}
	return &Provisioner{
		db:      db,
		tables:  cfg.Tables,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		timeout: cfg.Timeout,
	}
}

// HasTables reports whether module provisions any tenant tables
func (p *Provisioner) HasTables(module string) bool {
	_, ok := p.tables[module]
	return ok
}

// CreateTenantNamespace creates the namespace for slug and its baseline tables.
// Calling it for an existing namespace is a no-op.
func (p *Provisioner) CreateTenantNamespace(ctx context.Context, slug string) error {
	start := time.Now()
	err := p.createNamespace(ctx, slug)
	p.record(ctx, OpNamespaceCreate, audit.EventTypeTenantNamespaceCreate, slug, "", err, start)
	return err
}

func (p *Provisioner) createNamespace(ctx context.Context, slug string) error {
	schema, err := QuoteSchema(slug)
	if err != nil {
		return err
	}

	stmts := []string{fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)}
	stmts = append(stmts, baselineTables.Render(schema)...)

	if err := p.execTx(ctx, slug, stmts); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("failed to create namespace %s", slug), err)
	}
	return nil
}

// ProvisionModuleTables creates the tables module needs in the namespace of
// slug and seeds its canonical rows. Modules without tables are accepted and
// do nothing. Repeated calls never duplicate or overwrite seed rows.
func (p *Provisioner) ProvisionModuleTables(ctx context.Context, slug, module string) error {
	start := time.Now()
	err := p.provisionModule(ctx, slug, module)
	p.record(ctx, OpTablesProvision, audit.EventTypeTenantTablesProvision, slug, module, err, start)
	return err
}

func (p *Provisioner) provisionModule(ctx context.Context, slug, module string) error {
	schema, err := QuoteSchema(slug)
	if err != nil {
		return err
	}

	set, ok := p.tables[module]
	if !ok {
		p.log.WithFields(logrus.Fields{
			"tenant": slug,
			"module": module,
		}).Debug("module has no tenant tables")
		return nil
	}

	stmts := []string{fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)}
	stmts = append(stmts, set.Render(schema)...)

	if err := p.execTx(ctx, slug, stmts); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("failed to provision %s tables for %s", module, slug), err)
	}
	return nil
}

// DropTenantNamespace drops the namespace of slug and everything in it
func (p *Provisioner) DropTenantNamespace(ctx context.Context, slug string) error {
	start := time.Now()
	err := p.dropNamespace(ctx, slug)
	p.record(ctx, OpNamespaceDrop, audit.EventTypeTenantNamespaceDrop, slug, "", err, start)
	return err
}

func (p *Provisioner) dropNamespace(ctx context.Context, slug string) error {
	schema, err := QuoteSchema(slug)
	if err != nil {
		return err
	}
	if err := p.execTx(ctx, slug, []string{fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)}); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("failed to drop namespace %s", slug), err)
	}
	return nil
}

// NamespaceExists reports whether the namespace for slug exists
func (p *Provisioner) NamespaceExists(ctx context.Context, slug string) (bool, error) {
	if err := ValidateSlug(slug); err != nil {
		return false, err
	}
	var exists bool
	err := p.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", slug,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Classify(err, "failed to check namespace")
	}
	return exists, nil
}

// MissingTables lists the tables of module that do not exist yet in the
// namespace of slug
func (p *Provisioner) MissingTables(ctx context.Context, slug, module string) ([]string, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	set, ok := p.tables[module]
	if !ok || len(set.Tables) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = ANY($2)`,
		slug, pq.Array(set.Tables),
	)
	if err != nil {
		return nil, apperrors.Classify(err, "failed to list tenant tables")
	}
	defer rows.Close()

	present := make(map[string]bool, len(set.Tables))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant tables: %w", err)
	}

	var missing []string
	for _, table := range set.Tables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// execTx runs stmts in one transaction holding an advisory lock on slug so
// concurrent provisioning of the same tenant is serialized. The caller's
// cancellation is detached: DDL runs to completion or to p.timeout.
func (p *Provisioner) execTx(ctx context.Context, slug string, stmts []string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", slug); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to lock namespace: %w", err)
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Provisioner) record(ctx context.Context, op string, eventType audit.EventType, slug, module string, err error, start time.Time) {
	duration := time.Since(start)
	p.metrics.RecordProvisioning(op, module, err, duration)

	entry := p.log.WithFields(logrus.Fields{
		"operation": op,
		"tenant":    slug,
		"module":    module,
		"duration":  duration.String(),
	})
	if err != nil {
		entry.WithError(err).Error("tenant provisioning failed")
	} else {
		entry.Info("tenant provisioning completed")
	}

	if auditErr := p.audit.LogProvisioning(context.WithoutCancel(ctx), eventType, slug, module, err); auditErr != nil {
		p.log.WithError(auditErr).Warn("failed to record provisioning audit entry")
	}
}
