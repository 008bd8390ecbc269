package bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
)

// Command applies the platform DDL to the environment schema. It is idempotent.
func Command(opts *clienv.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the environment schema and billing tables",
		Long:  "Create the <env>__payroll schema with the companies, plans, subscriptions and log tables. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := persistence.BootstrapPlatformSchema(ctx, session.Pool, session.Schema); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Bootstrap complete. Schema: %s\n", session.Schema)
			return nil
		},
	}
}
