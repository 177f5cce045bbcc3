package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/principal"
)

func newTokenCommand(out io.Writer) *Command {
	return &Command{
		Name:        "token",
		Description: "Mint a principal token for development",
		Flags:       flag.NewFlagSet("token", flag.ExitOnError),
		Run: func(args []string) error {
			return runToken(args, out)
		},
	}
}

func runToken(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("token", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	userID := flags.String("user", "", "User id (token subject)")
	email := flags.String("email", "", "User email")
	orgID := flags.String("org-id", "", "Organization id")
	orgSlug := flags.String("org-slug", "", "Organization slug")
	superAdmin := flags.Bool("super-admin", false, "Mint a super-admin token")
	ttl := flags.Duration("ttl", time.Hour, "Token lifetime")
	secret := flags.String("secret", os.Getenv("TENANTGATE_JWT_SECRET"), "Signing secret")
	issuer := flags.String("issuer", "tenantgate", "Token issuer")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("-user is required")
	}
	if (*orgID == "") != (*orgSlug == "") {
		return fmt.Errorf("-org-id and -org-slug must be given together")
	}

	p := principal.Principal{UserID: *userID, Email: *email, IsSuperAdmin: *superAdmin}
	if *orgID != "" {
		p.OrganizationID = orgID
		p.OrganizationSlug = *orgSlug
	}

	issuerImpl, err := principal.NewIssuer(principal.TokenConfig{Secret: []byte(*secret), Issuer: *issuer})
	if err != nil {
		return err
	}
	token, err := issuerImpl.Issue(p, *ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintln(out, token)
	return nil
}
