package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
)

func newMigrateCommand(open Opener, out io.Writer) *Command {
	return &Command{
		Name:        "migrate",
		Description: "Apply pending control-plane migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ExitOnError),
		Run: func(args []string) error {
			return withBackend(open, func(ctx context.Context, b *Backend) error {
				applied, err := b.Migrator.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				if len(applied) == 0 {
					fmt.Fprintln(out, "Control plane is up to date")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintf(out, "Applied %s\n", name)
				}
				return nil
			})
		},
	}
}
