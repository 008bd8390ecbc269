// Package metrics holds the Prometheus instrumentation of the billing lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics records sweep and command outcomes. A nil *BillingMetrics is a valid no-op.
type BillingMetrics struct {
	sweepRuns       *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	companiesFrozen *prometheus.CounterVec
	companiesThawed *prometheus.CounterVec
	sweepSkipped    prometheus.Counter
	trialsExpired   prometheus.Counter
	notifications   *prometheus.CounterVec
	commands        *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

// NewBillingMetrics builds the collectors and registers them on reg.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		sweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "sweep_runs_total",
				Help:      "Total sweep runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		sweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of sweep runs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		companiesFrozen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "companies_frozen_total",
				Help:      "Total companies frozen by source",
			},
			[]string{"source"},
		),
		companiesThawed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "companies_unfrozen_total",
				Help:      "Total companies unfrozen by source",
			},
			[]string{"source"},
		),
		sweepSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "sweep_skipped_records_total",
				Help:      "Total subscription records skipped as malformed",
			},
		),
		trialsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "trials_expired_total",
				Help:      "Total trials moved to trial_expired",
			},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "notifications_total",
				Help:      "Total notifications by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "commands_total",
				Help:      "Total billing commands by name and outcome",
			},
			[]string{"command", "outcome"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "palmyra",
				Subsystem: "billing",
				Name:      "log_events_dropped_total",
				Help:      "Total log events that could not be enqueued",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.sweepRuns,
			m.sweepDuration,
			m.companiesFrozen,
			m.companiesThawed,
			m.sweepSkipped,
			m.trialsExpired,
			m.notifications,
			m.commands,
			m.eventsDropped,
		)
	}
	return m
}

// SweepCompleted records a finished sweep.
func (m *BillingMetrics) SweepCompleted(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(job, outcome).Inc()
	m.sweepDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *BillingMetrics) CompaniesFrozen(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.companiesFrozen.WithLabelValues(source).Add(float64(n))
}

func (m *BillingMetrics) CompaniesUnfrozen(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.companiesThawed.WithLabelValues(source).Add(float64(n))
}

func (m *BillingMetrics) RecordsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepSkipped.Add(float64(n))
}

func (m *BillingMetrics) TrialsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.trialsExpired.Add(float64(n))
}

func (m *BillingMetrics) Notification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

func (m *BillingMetrics) Command(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *BillingMetrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
