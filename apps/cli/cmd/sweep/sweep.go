package sweep

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-payroll/apps/internal/wiring"
	billingservice "github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
)

// Command groups the lifecycle sweeps so they can run from a scheduler without the HTTP surface.
func Command(opts *clienv.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run subscription lifecycle sweeps",
	}

	cmd.AddCommand(healthCommand(opts), trialsCommand(opts))
	return cmd
}

func healthCommand(opts *clienv.Options) *cobra.Command {
	var dryRun bool

	c := &cobra.Command{
		Use:   "health",
		Short: "Freeze past-due companies and unfreeze recovered ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(services *wiring.Services) (any, error) {
				return services.Billing.RunHealthSweep(cmd.Context(), billingservice.SweepOptions{DryRun: dryRun})
			})
		},
	}

	c.Flags().BoolVar(&dryRun, "dry-run", false, "report planned actions without changing companies")
	return c
}

func trialsCommand(opts *clienv.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "trials",
		Short: "Send trial warnings, expire ended trials and freeze companies whose trial expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(services *wiring.Services) (any, error) {
				return services.Billing.RunTrialSweep(cmd.Context())
			})
		},
	}
}

func run(cmd *cobra.Command, opts *clienv.Options, sweep func(*wiring.Services) (any, error)) error {
	ctx := cmd.Context()
	session, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	services, err := session.Services(ctx)
	if err != nil {
		return err
	}

	summary, sweepErr := sweep(services)
	// Drain before exiting so queued events reach the log tables.
	if err := services.Close(ctx); err != nil {
		session.Logger.Warn("close services", zap.Error(err))
	}
	if errors.Is(sweepErr, billingservice.ErrSweepInProgress) {
		return errors.New("another sweep holds the lease; try again later")
	}
	if sweepErr != nil {
		return sweepErr
	}
	return writeSummary(cmd.OutOrStdout(), summary)
}

func writeSummary(out io.Writer, summary any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
