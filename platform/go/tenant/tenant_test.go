package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestScopeContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	scope := Scope{CompanyID: uuid.New(), Active: true}
	got, ok := FromContext(WithScope(context.Background(), scope))
	require.True(t, ok)
	require.Equal(t, scope, got)
}

func TestBuildSchemaName(t *testing.T) {
	require.Equal(t, "dev_eu__payroll", BuildSchemaName("dev-EU"))
	require.Equal(t, "", BuildSchemaName("  "))
}

func TestReportKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("x", -2*3600))
	require.Equal(t, "prod/reports/check-subscription-health/2026/03/10/01HX.json",
		ReportKey("prod/", "check-subscription-health", "01HX", at))
	require.Equal(t, "default/reports/job/2026/03/10/r.json", ReportKey("", "job", "r", at))
}
