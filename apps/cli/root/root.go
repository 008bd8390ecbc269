package root

import (
	"context"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the Palmyra payroll admin CLI. Subcommands are attached in wire.go.
var rootCmd = &cobra.Command{
	Use:           "palmyra",
	Short:         "Palmyra payroll admin CLI",
	Long:          "Administrative utilities for Palmyra payroll (dev tokens, schema bootstrap, plan catalog, companies, lifecycle sweeps).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI with ctx, which commands observe for cancellation.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
