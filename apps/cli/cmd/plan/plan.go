package plan

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/catalog"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
)

// Command groups plan catalog helpers.
func Command(opts *clienv.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage the plan catalog",
	}

	cmd.AddCommand(seedCommand(opts), listCommand(opts))
	return cmd
}

func seedCommand(opts *clienv.Options) *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   "seed",
		Short: "Insert or update plans from a JSON catalog",
		Long:  "Insert or update plans by name. Without --file the built-in catalog (Free trial, Starter, Pro) is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := loadCatalog(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			session, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			store, err := persistence.NewPlanStore(session.Pool)
			if err != nil {
				return err
			}

			saved := make([]persistence.PlanRecord, 0, len(plans))
			for _, p := range plans {
				rec, err := store.Upsert(ctx, persistence.PlanRecord{
					Name:             p.Name,
					PriceMonthly:     p.PriceMonthly,
					PriceYearly:      p.PriceYearly,
					IsActive:         p.IsActive,
					TrialEnabled:     p.TrialEnabled,
					TrialDefaultDays: p.TrialDefaultDays,
				})
				if err != nil {
					return fmt.Errorf("upsert plan %q: %w", p.Name, err)
				}
				saved = append(saved, rec)
			}

			return writePlans(cmd.OutOrStdout(), saved)
		},
	}

	c.Flags().StringVar(&file, "file", "", "path to a plan catalog JSON document")
	return c
}

func listCommand(opts *clienv.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans ordered by monthly price",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer session.Close()

			store, err := persistence.NewPlanStore(session.Pool)
			if err != nil {
				return err
			}
			plans, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list plans: %w", err)
			}
			return writePlans(cmd.OutOrStdout(), plans)
		},
	}
}

func loadCatalog(file string) ([]lifecycle.Plan, error) {
	if file == "" {
		return catalog.Default()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return catalog.Parse(data)
}

func writePlans(out io.Writer, plans []persistence.PlanRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMONTHLY\tYEARLY\tACTIVE\tTRIAL DAYS")
	for _, p := range plans {
		trial := "-"
		if p.TrialEnabled {
			trial = fmt.Sprint(p.TrialDefaultDays)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
			p.ID, p.Name, p.PriceMonthly.StringFixed(2), p.PriceYearly.StringFixed(2), p.IsActive, trial)
	}
	return tw.Flush()
}
