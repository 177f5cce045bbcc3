package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/tenantgate/pkg/modules"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Migrator applies control-plane migrations
type Migrator interface {
	Up(ctx context.Context) ([]string, error)
}

// OrganizationLister lists organizations; orgs.PostgresStore implements it
type OrganizationLister interface {
	ListOrganizations(ctx context.Context, includeInactive bool) ([]*orgs.Organization, error)
}

// AssignmentLister lists an organization's module assignments;
// modules.PostgresStore implements it
type AssignmentLister interface {
	ListAssignments(ctx context.Context, orgID string) ([]modules.Assignment, error)
}

// NamespaceProvisioner creates tenant namespaces and module tables;
// tenant.Provisioner implements it
type NamespaceProvisioner interface {
	CreateTenantNamespace(ctx context.Context, slug string) error
	ProvisionModuleTables(ctx context.Context, slug, module string) error
}

// Backend is what the database commands operate on
type Backend struct {
	DB            *sql.DB
	Migrator      Migrator
	Organizations OrganizationLister
	Assignments   AssignmentLister
	Provisioner   NamespaceProvisioner
}

// Close releases the backend
func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

// Opener connects a Backend. It is only called by commands that need the
// database.
type Opener func(ctx context.Context) (*Backend, error)

// NewRootCommand creates the root command
func NewRootCommand(open Opener, out io.Writer) *Command {
	if out == nil {
		out = os.Stdout
	}
	root := &Command{
		Name:        "tenantgate-admin",
		Description: "tenantgate - tenant and permission administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("tenantgate-admin", flag.ExitOnError),
	}

	root.Subcommands["migrate"] = newMigrateCommand(open, out)
	root.Subcommands["token"] = newTokenCommand(out)
	root.Subcommands["reconcile"] = newReconcileCommand(open, out)
	root.Subcommands["provision"] = newProvisionCommand(open, out)

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with args
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// withBackend opens the backend for the duration of fn
func withBackend(open Opener, fn func(ctx context.Context, b *Backend) error) error {
	ctx := context.Background()
	b, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer b.Close()
	return fn(ctx, b)
}
