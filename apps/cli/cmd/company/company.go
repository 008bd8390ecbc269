package company

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	billingservice "github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
	companiesservice "github.com/zenGate-Global/palmyra-payroll/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

// Command groups company administration helpers.
func Command(opts *clienv.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage companies",
	}

	cmd.AddCommand(createCommand(opts))
	return cmd
}

func createCommand(opts *clienv.Options) *cobra.Command {
	var (
		input    companiesservice.ProvisionInput
		planName string
		interval string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a company with its owner and first subscription",
		Long: "Create an active company, register the owner member and start a subscription on the given plan. " +
			"Plans with a trial start in trialing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			billingInterval, err := lifecycle.ParseBillingInterval(interval)
			if err != nil {
				return err
			}

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
			defer func() {
				if err := services.Close(ctx); err != nil {
					session.Logger.Warn("close services", zap.Error(err))
				}
			}()

			plan, err := services.Stores.Plans.GetByName(ctx, planName)
			if errors.Is(err, persistence.ErrNotFound) {
				return fmt.Errorf("plan %q not found (run plan seed first)", planName)
			}
			if err != nil {
				return fmt.Errorf("load plan: %w", err)
			}

			ctx = requesttrace.IntoContext(ctx, requesttrace.System(ulid.Make().String()))
			company, err := services.Companies.Provision(ctx, input)
			if err != nil {
				return describe(err)
			}

			sub, err := services.Billing.StartSubscription(ctx, billingservice.StartInput{
				CompanyID: company.ID,
				PlanID:    plan.ID,
				Interval:  billingInterval,
			})
			if err != nil {
				return fmt.Errorf("start subscription: %w", describe(err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Company created. ID: %s | Slug: %s | Plan: %s (%s)\n",
				company.ID, company.Slug, plan.Name, sub.Status)
			return nil
		},
	}

	c.Flags().StringVar(&input.Name, "name", "", "company display name")
	c.Flags().StringVar(&input.Slug, "slug", "", "unique slug; derived from the name when empty")
	c.Flags().StringVar(&input.OwnerUserID, "owner-user-id", "", "identity provider user id of the owner")
	c.Flags().StringVar(&input.OwnerEmail, "owner-email", "", "owner email used for billing notices")
	c.Flags().StringVar(&planName, "plan", "Free", "plan name")
	c.Flags().StringVar(&interval, "interval", string(lifecycle.IntervalMonthly), "billing interval (monthly|yearly)")

	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("owner-user-id")
	_ = c.MarkFlagRequired("owner-email")

	return c
}

// describe flattens validation errors of either service into a readable message.
func describe(err error) error {
	var companyErr *companiesservice.ValidationError
	if errors.As(err, &companyErr) {
		return fmt.Errorf("invalid input: %v", companyErr.Fields)
	}
	var billingErr *billingservice.ValidationError
	if errors.As(err, &billingErr) {
		return fmt.Errorf("invalid input: %v", billingErr.Fields)
	}
	if errors.Is(err, companiesservice.ErrConflictSlug) {
		return fmt.Errorf("slug already taken: %w", err)
	}
	return err
}
