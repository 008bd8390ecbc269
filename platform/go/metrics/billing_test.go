package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBillingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBillingMetrics(reg)

	m.SweepCompleted("check-subscription-health", "ok", 120*time.Millisecond)
	m.CompaniesFrozen("sweep", 3)
	m.CompaniesFrozen("sweep", 0)
	m.Notification("trial_expired", "sent")
	m.Command("assign_plan", "ok")

	require.Equal(t, float64(1), testutil.ToFloat64(m.sweepRuns.WithLabelValues("check-subscription-health", "ok")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.companiesFrozen.WithLabelValues("sweep")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.notifications.WithLabelValues("trial_expired", "sent")))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNilBillingMetricsIsNoop(t *testing.T) {
	var m *BillingMetrics
	require.NotPanics(t, func() {
		m.SweepCompleted("x", "ok", time.Second)
		m.CompaniesFrozen("sweep", 1)
		m.CompaniesUnfrozen("sweep", 1)
		m.RecordsSkipped(1)
		m.TrialsExpired(1)
		m.Notification("k", "sent")
		m.Command("c", "ok")
		m.EventDropped()
	})
}
