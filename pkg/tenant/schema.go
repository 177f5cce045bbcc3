package tenant

import (
	"fmt"
	"sort"
)

// TableSet is the DDL and canonical seed data a module needs inside a tenant
// namespace. Statements use %[1]s for the quoted schema name and must be
// idempotent: CREATE ... IF NOT EXISTS for DDL, ON CONFLICT DO NOTHING for seeds.
type TableSet struct {
	Module     string
	Tables     []string
	Statements []string
	Seeds      []string
}

// Render returns the statements of the set bound to schema
func (s TableSet) Render(quotedSchema string) []string {
	out := make([]string, 0, len(s.Statements)+len(s.Seeds))
	for _, stmt := range s.Statements {
		out = append(out, fmt.Sprintf(stmt, quotedSchema))
	}
	for _, stmt := range s.Seeds {
		out = append(out, fmt.Sprintf(stmt, quotedSchema))
	}
	return out
}

// baselineTables are created together with every tenant namespace
var baselineTables = TableSet{
	Module: "",
	Tables: []string{"users", "user_permissions"},
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS %[1]s.users (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			email text UNIQUE NOT NULL,
			name text NOT NULL,
			hashed_password text,
			role text NOT NULL DEFAULT 'user',
			phone text,
			is_active boolean DEFAULT true,
			last_login_at timestamptz,
			created_at timestamptz DEFAULT now(),
			updated_at timestamptz DEFAULT now(),
			created_by uuid
		)`,
		`CREATE TABLE IF NOT EXISTS %[1]s.user_permissions (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id uuid NOT NULL REFERENCES %[1]s.users(id) ON DELETE CASCADE,
			module_name text NOT NULL,
			can_read boolean DEFAULT false,
			can_write boolean DEFAULT false,
			can_delete boolean DEFAULT false,
			granted_at timestamptz DEFAULT now(),
			granted_by uuid
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON %[1]s.users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_user_permissions_user ON %[1]s.user_permissions(user_id)`,
	},
}

var bookingTables = TableSet{
	Module: "booking",
	Tables: []string{"courts", "court_reservations", "events"},
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS %[1]s.courts (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			type text NOT NULL,
			is_active boolean DEFAULT true,
			created_at timestamptz DEFAULT now(),
			updated_at timestamptz DEFAULT now(),
			created_by uuid,
			CONSTRAINT courts_name_key UNIQUE (name)
		)`,
		`CREATE TABLE IF NOT EXISTS %[1]s.court_reservations (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			court_id uuid NOT NULL REFERENCES %[1]s.courts(id) ON DELETE CASCADE,
			name text,
			phone text,
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			status text NOT NULL DEFAULT 'confirmed',
			payment_method text DEFAULT 'pending',
			is_recurring boolean DEFAULT false,
			recurrence_end timestamptz,
			paid_sessions text,
			payment_notes text,
			created_by uuid,
			created_at timestamptz DEFAULT now(),
			updated_at timestamptz DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS %[1]s.events (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			date timestamptz NOT NULL,
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			court_ids jsonb NOT NULL,
			created_by uuid,
			created_at timestamptz DEFAULT now(),
			updated_at timestamptz DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_court_reservations_court_id ON %[1]s.court_reservations(court_id)`,
		`CREATE INDEX IF NOT EXISTS idx_court_reservations_start_time ON %[1]s.court_reservations(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_date ON %[1]s.events(date)`,
	},
	Seeds: []string{
		`INSERT INTO %[1]s.courts (name, type) VALUES
			('Cancha Fútbol 1', 'futbol'),
			('Cancha Fútbol 2', 'futbol'),
			('Cancha Pádel 1', 'padel'),
			('Cancha Pádel 2', 'padel')
		ON CONFLICT (name) DO NOTHING`,
	},
}

var posTables = TableSet{
	Module: "pos",
	Tables: []string{"products", "sales"},
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS %[1]s.products (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			name text NOT NULL,
			price numeric(10,2) NOT NULL,
			sku text UNIQUE,
			stock integer DEFAULT 0,
			is_active boolean DEFAULT true,
			created_at timestamptz DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS %[1]s.sales (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			items jsonb NOT NULL,
			total numeric(10,2) NOT NULL,
			payment_method text,
			created_by uuid,
			created_at timestamptz DEFAULT now()
		)`,
	},
}

// DefaultTableSets returns the module table sets keyed by module name.
// Modules without an entry need no tenant tables.
func DefaultTableSets() map[string]TableSet {
	return map[string]TableSet{
		bookingTables.Module: bookingTables,
		posTables.Module:     posTables,
	}
}

// ModulesWithTables lists the module names that provision tenant tables
func ModulesWithTables(sets map[string]TableSet) []string {
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
