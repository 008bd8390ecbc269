package contracts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBilling(t *testing.T) {
	doc, err := LoadBilling(context.Background())
	require.NoError(t, err)

	for _, path := range []string{
		"/api/v1/billing/assign-plan",
		"/api/v1/billing/freeze-company",
		"/api/v1/jobs/check-subscription-health",
		"/api/v1/jobs/cron-subscription-health",
		"/api/v1/companies/{companyId}/access",
		"/api/v1/companies/{companyId}",
	} {
		require.NotNil(t, doc.Paths.Find(path), path)
	}
	require.Contains(t, doc.Components.SecuritySchemes, "serviceKey")
}
