package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	plans, err := Default()
	require.NoError(t, err)
	require.Len(t, plans, 3)

	free := plans[0]
	require.Equal(t, "Free", free.Name)
	require.True(t, free.IsActive)
	require.True(t, free.TrialEnabled)
	require.Equal(t, 14, free.TrialDefaultDays)
	require.True(t, free.PriceMonthly.IsZero())

	require.True(t, decimal.RequireFromString("490").Equal(plans[2].PriceYearly))
}

func TestParse(t *testing.T) {
	plans, err := Parse([]byte(`{"plans":[
		{"name":" Legacy ","price_monthly":9.5,"price_yearly":"95","is_active":false}
	]}`))
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Equal(t, "Legacy", plans[0].Name)
	require.False(t, plans[0].IsActive)
	require.True(t, decimal.RequireFromString("9.5").Equal(plans[0].PriceMonthly))
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no plans", `{"plans":[]}`},
		{"missing price", `{"plans":[{"name":"Pro","price_monthly":"49"}]}`},
		{"negative price", `{"plans":[{"name":"Pro","price_monthly":-1,"price_yearly":"0"}]}`},
		{"malformed price", `{"plans":[{"name":"Pro","price_monthly":"49.999","price_yearly":"0"}]}`},
		{"unknown field", `{"plans":[{"name":"Pro","price_monthly":"1","price_yearly":"1","stripe":"x"}]}`},
		{"trial without days", `{"plans":[{"name":"Free","price_monthly":"0","price_yearly":"0","trial_enabled":true}]}`},
		{"trial with zero days", `{"plans":[{"name":"Free","price_monthly":"0","price_yearly":"0","trial_enabled":true,"trial_default_days":0}]}`},
		{"duplicate names", `{"plans":[{"name":"Pro","price_monthly":"1","price_yearly":"1"},{"name":"pro","price_monthly":"2","price_yearly":"2"}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
		})
	}
}
