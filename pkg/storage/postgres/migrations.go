package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

const migrationsTable = "schema_migrations"

// Migration is one embedded control-plane migration
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded migrations in apply order
func Migrations() ([]Migration, error) {
	entries, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	out := make([]Migration, 0, len(entries))
	for _, path := range entries {
		body, err := migrationFiles.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", path, err)
		}
		out = append(out, Migration{
			Name: strings.TrimSuffix(strings.TrimPrefix(path, "migrations/"), ".up.sql"),
			SQL:  string(body),
		})
	}
	return out, nil
}

// Migrator applies control-plane migrations and records them in schema_migrations
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	log        *logrus.Logger
}

// NewMigrator creates a migrator over the embedded migrations
func NewMigrator(db *sql.DB, log *logrus.Logger) (*Migrator, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	return NewMigratorWith(db, migrations, log), nil
}

// NewMigratorWith creates a migrator over an explicit migration list
func NewMigratorWith(db *sql.DB, migrations []Migration, log *logrus.Logger) *Migrator {
	if log == nil {
		log = logrus.New()
	}
	return &Migrator{db: db, migrations: migrations, log: log}
}

// Up applies every pending migration, each in its own transaction.
// It returns the names it applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("failed to ensure %s table: %w", migrationsTable, err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	var ran []string
	for _, mig := range m.migrations {
		if done[mig.Name] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return ran, fmt.Errorf("failed to apply migration %s: %w", mig.Name, err)
		}
		m.log.WithField("migration", mig.Name).Info("applied migration")
		ran = append(ran, mig.Name)
	}
	return ran, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationsTable+` (name) VALUES ($1)`, mig.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// Applied lists recorded migrations in apply order
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM `+migrationsTable+` ORDER BY applied_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
