package main

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/cli"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/modules"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenant"
)

func main() {
	rootCmd := cli.NewRootCommand(openBackend, os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openBackend connects to the control plane described by TENANTGATE_*
func openBackend(ctx context.Context) (*cli.Backend, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	dbCfg := cfg.Database.Connection()
	dbCfg.ReplicaURLs = nil
	conns, err := postgres.NewConnectionManager(dbCfg, log)
	if err != nil {
		return nil, err
	}
	db := conns.Primary()

	migrator, err := postgres.NewMigrator(db, log)
	if err != nil {
		conns.Close()
		return nil, err
	}

	timeout := cfg.Tenant.ProvisionTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	provisioner := tenant.NewProvisioner(db, tenant.ProvisionerConfig{
		Tables:  tenant.DefaultTableSets(),
		Audit:   audit.NoOp(),
		Logger:  log,
		Timeout: timeout,
	})

	return &cli.Backend{
		DB:            db,
		Migrator:      migrator,
		Organizations: orgs.NewPostgresStore(db),
		Assignments:   modules.NewPostgresStore(db),
		Provisioner:   provisioner,
	}, nil
}
