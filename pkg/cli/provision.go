package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/platinummonkey/tenantgate/pkg/tenant"
)

func newProvisionCommand(open Opener, out io.Writer) *Command {
	return &Command{
		Name:        "provision",
		Description: "Create a tenant namespace and provision module tables: provision <slug> [module...]",
		Flags:       flag.NewFlagSet("provision", flag.ExitOnError),
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("usage: provision <slug> [module...]")
			}
			slug, moduleNames := args[0], args[1:]
			if err := tenant.ValidateSlug(slug); err != nil {
				return err
			}

			return withBackend(open, func(ctx context.Context, b *Backend) error {
				if err := b.Provisioner.CreateTenantNamespace(ctx, slug); err != nil {
					return err
				}
				fmt.Fprintf(out, "Namespace %s ready\n", slug)
				for _, name := range moduleNames {
					if err := b.Provisioner.ProvisionModuleTables(ctx, slug, name); err != nil {
						return err
					}
					fmt.Fprintf(out, "Provisioned %s for %s\n", name, slug)
				}
				return nil
			})
		},
	}
}
