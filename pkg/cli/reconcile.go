package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// ReconcileReport summarizes a reconcile run
type ReconcileReport struct {
	Organizations int
	Provisioned   int
	Failures      map[string]error
}

// Reconcile makes every organization's namespace match its enabled
// modules: the namespace is created when missing and the tables of every
// enabled module are provisioned again. Provisioning is idempotent, so a
// run over an already consistent tenant changes nothing. One failing
// organization does not stop the others.
func Reconcile(ctx context.Context, b *Backend, includeInactive bool, concurrency int) (*ReconcileReport, error) {
	list, err := b.Organizations.ListOrganizations(ctx, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	report := &ReconcileReport{Organizations: len(list), Failures: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, org := range list {
		org := org
		g.Go(func() error {
			n, err := reconcileOrganization(gctx, b, org)
			mu.Lock()
			defer mu.Unlock()
			report.Provisioned += n
			if err != nil {
				report.Failures[org.Slug] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func reconcileOrganization(ctx context.Context, b *Backend, org *orgs.Organization) (int, error) {
	if err := b.Provisioner.CreateTenantNamespace(ctx, org.Slug); err != nil {
		return 0, err
	}

	assignments, err := b.Assignments.ListAssignments(ctx, org.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list modules: %w", err)
	}

	provisioned := 0
	for _, a := range assignments {
		if !a.IsEnabled {
			continue
		}
		if err := b.Provisioner.ProvisionModuleTables(ctx, org.Slug, a.ModuleName); err != nil {
			return provisioned, err
		}
		provisioned++
	}
	return provisioned, nil
}

func newReconcileCommand(open Opener, out io.Writer) *Command {
	return &Command{
		Name:        "reconcile",
		Description: "Ensure every organization's namespace and module tables exist",
		Flags:       flag.NewFlagSet("reconcile", flag.ExitOnError),
		Run: func(args []string) error {
			flags := flag.NewFlagSet("reconcile", flag.ContinueOnError)
			flags.SetOutput(io.Discard)
			includeInactive := flags.Bool("include-inactive", false, "Also reconcile deactivated organizations")
			concurrency := flags.Int("concurrency", 4, "Organizations reconciled in parallel")
			if err := flags.Parse(args); err != nil {
				return err
			}

			return withBackend(open, func(ctx context.Context, b *Backend) error {
				report, err := Reconcile(ctx, b, *includeInactive, *concurrency)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Reconciled %d organizations, %d module table sets\n", report.Organizations, report.Provisioned)
				if len(report.Failures) == 0 {
					return nil
				}
				slugs := make([]string, 0, len(report.Failures))
				for slug := range report.Failures {
					slugs = append(slugs, slug)
				}
				sort.Strings(slugs)
				for _, slug := range slugs {
					fmt.Fprintf(out, "  %s: %v\n", slug, report.Failures[slug])
				}
				return fmt.Errorf("%d organizations failed to reconcile", len(report.Failures))
			})
		},
	}
}
