package root

import (
	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/auth"
	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/bootstrap"
	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/clienv"
	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/company"
	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/plan"
	"github.com/zenGate-Global/palmyra-payroll/apps/cli/cmd/sweep"
)

func init() {
	opts := clienv.Bind(Root())

	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command(opts))
	Root().AddCommand(plan.Command(opts))
	Root().AddCommand(company.Command(opts))
	Root().AddCommand(sweep.Command(opts))
}
