package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/repo"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/notify"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

var fixedNow = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	fail func(notify.Message) error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		if err := n.fail(msg); err != nil {
			return err
		}
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	t        *testing.T
	repo     *repo.MemoryRepository
	locker   *repo.MemoryLocker
	writer   *eventlog.MemoryWriter
	sink     *eventlog.Sink
	notifier *recordingNotifier
	svc      service.Service
	free     lifecycle.Plan
	pro      lifecycle.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		repo:     repo.NewMemoryRepository(),
		locker:   repo.NewMemoryLocker(),
		writer:   eventlog.NewMemoryWriter(),
		notifier: &recordingNotifier{},
		free:     lifecycle.Plan{ID: uuid.New(), Name: "Free", IsActive: true, TrialEnabled: true, TrialDefaultDays: 14},
		pro: lifecycle.Plan{ID: uuid.New(), Name: "Pro", IsActive: true,
			PriceMonthly: decimal.NewFromInt(49), PriceYearly: decimal.NewFromInt(490)},
	}
	f.sink = eventlog.NewSink(f.writer, zaptest.NewLogger(t), eventlog.Config{BufferSize: 256})
	t.Cleanup(func() { _ = f.sink.Drain(context.Background()) })

	f.repo.PutPlan(f.free)
	f.repo.PutPlan(f.pro)

	f.svc = service.New(service.Deps{
		Repo:     f.repo,
		Locker:   f.locker,
		Events:   f.sink,
		Notifier: f.notifier,
		Logger:   zaptest.NewLogger(t),
		Now:      func() time.Time { return fixedNow },
	}, service.DefaultConfig())
	return f
}

// company creates an active company with an owner "owner-<id>" and an admin.
func (f *fixture) company(active bool) service.Company {
	c := service.Company{ID: uuid.New(), Name: "Acme", Slug: "acme-" + uuid.NewString()[:8], IsActive: active}
	f.repo.PutCompany(c)
	f.repo.PutMember(service.Member{CompanyID: c.ID, UserID: "owner", Email: "owner@acme.test", Role: service.RoleOwner, IsActive: true})
	f.repo.PutMember(service.Member{CompanyID: c.ID, UserID: "admin", Email: "admin@acme.test", Role: service.RoleAdmin, IsActive: true})
	f.repo.PutMember(service.Member{CompanyID: c.ID, UserID: "employee", Email: "emp@acme.test", Role: service.RoleEmployee, IsActive: true})
	return c
}

func (f *fixture) subscribe(companyID uuid.UUID, plan lifecycle.Plan, status lifecycle.SubscriptionStatus, periodEnd, trialEnd *time.Time) {
	_, err := f.repo.SaveSubscription(context.Background(), service.Subscription{
		CompanyID:          companyID,
		PlanID:             plan.ID,
		Status:             status,
		Interval:           lifecycle.IntervalMonthly,
		CurrentPeriodStart: fixedNow.AddDate(0, -2, 0),
		CurrentPeriodEnd:   periodEnd,
		TrialEndsAt:        trialEnd,
	})
	require.NoError(f.t, err)
}

func (f *fixture) events(companyID uuid.UUID) []eventlog.Event {
	require.NoError(f.t, f.sink.Flush(context.Background()))
	return f.writer.ForCompany(companyID)
}

func asUser(userID string) context.Context {
	return requesttrace.IntoContext(context.Background(), requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &userID,
		RequestID: "req-" + userID,
	})
}

func days(n int) *time.Time {
	t := fixedNow.AddDate(0, 0, n)
	return &t
}

func typesOf(events []eventlog.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e.Family)+":"+e.Type)
	}
	return out
}

func TestAssignPlanCreatesSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)

	res, err := f.svc.AssignPlan(asUser("admin"), service.AssignPlanInput{
		CompanyID:       c.ID.String(),
		PlanID:          f.pro.ID.String(),
		BillingInterval: "yearly",
	})
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusActive, res.Subscription.Status)
	require.Equal(t, lifecycle.ChangeCreated, res.Change)
	require.False(t, res.TrialEnded)
	require.Nil(t, res.Subscription.TrialEndsAt)
	require.Equal(t, fixedNow.AddDate(1, 0, 0), *res.Subscription.CurrentPeriodEnd)

	events := f.events(c.ID)
	require.ElementsMatch(t, []string{"audit:plan_changed", "billing:subscription_created"}, typesOf(events))
	for _, e := range events {
		require.Equal(t, "user", e.ActorKind)
		require.Equal(t, "admin", *e.ActorID)
	}
}

func TestAssignPaidPlanEndsTrial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.free, lifecycle.StatusTrialing, days(9), days(9))

	res, err := f.svc.AssignPlan(asUser("owner"), service.AssignPlanInput{CompanyID: c.ID.String(), PlanID: f.pro.ID.String()})
	require.NoError(t, err)
	require.True(t, res.TrialEnded)
	require.Equal(t, lifecycle.StatusActive, res.Subscription.Status)
	require.Nil(t, res.Subscription.TrialEndsAt)
	require.Equal(t, lifecycle.ChangeUpgraded, res.Change)

	var billing eventlog.Event
	for _, e := range f.events(c.ID) {
		if e.Family == eventlog.FamilyBilling {
			billing = e
		}
	}
	require.Equal(t, eventlog.BillingSubscriptionUpgraded, billing.Type)
	require.Equal(t, true, billing.Details["trial_ended"])
}

func TestAssignFreePlanPreservesTrial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.pro, lifecycle.StatusTrialing, days(5), days(5))

	res, err := f.svc.AssignPlan(asUser("owner"), service.AssignPlanInput{CompanyID: c.ID.String(), PlanID: f.free.ID.String()})
	require.NoError(t, err)
	require.False(t, res.TrialEnded)
	require.Equal(t, lifecycle.StatusTrialing, res.Subscription.Status)
	require.NotNil(t, res.Subscription.TrialEndsAt)
	require.True(t, days(5).Equal(*res.Subscription.TrialEndsAt))
	require.Equal(t, lifecycle.ChangeDowngraded, res.Change)
}

func TestAssignPlanErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	inactive := lifecycle.Plan{ID: uuid.New(), Name: "Legacy", PriceMonthly: decimal.NewFromInt(10)}
	f.repo.PutPlan(inactive)

	testCases := []struct {
		name  string
		ctx   context.Context
		input service.AssignPlanInput
		check func(t *testing.T, err error)
	}{
		{
			name:  "invalid ids",
			ctx:   asUser("owner"),
			input: service.AssignPlanInput{CompanyID: "nope", BillingInterval: "weekly"},
			check: func(t *testing.T, err error) {
				var verr *service.ValidationError
				require.ErrorAs(t, err, &verr)
				require.Contains(t, verr.Fields, "company_id")
				require.Contains(t, verr.Fields, "plan_id")
				require.Contains(t, verr.Fields, "billing_interval")
			},
		},
		{
			name:  "anonymous caller",
			ctx:   context.Background(),
			input: service.AssignPlanInput{CompanyID: c.ID.String(), PlanID: f.pro.ID.String()},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, service.ErrUnauthorized) },
		},
		{
			name:  "employee caller",
			ctx:   asUser("employee"),
			input: service.AssignPlanInput{CompanyID: c.ID.String(), PlanID: f.pro.ID.String()},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, service.ErrForbidden) },
		},
		{
			name:  "unknown plan",
			ctx:   asUser("owner"),
			input: service.AssignPlanInput{CompanyID: c.ID.String(), PlanID: uuid.NewString()},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, service.ErrNotFound) },
		},
		{
			name:  "inactive plan",
			ctx:   asUser("owner"),
			input: service.AssignPlanInput{CompanyID: c.ID.String(), PlanID: inactive.ID.String()},
			check: func(t *testing.T, err error) { require.ErrorIs(t, err, service.ErrNotFound) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AssignPlan(tc.ctx, tc.input)
			require.Error(t, err)
			tc.check(t, err)
		})
	}

	require.Empty(t, f.events(c.ID))
}

func TestFreezeCompanyIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.pro, lifecycle.StatusActive, days(20), nil)
	reason := "chargeback"

	res, err := f.svc.FreezeCompany(asUser("owner"), service.FreezeInput{CompanyID: c.ID.String(), Action: "freeze", Reason: &reason})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.False(t, res.Company.IsActive)

	sub, err := f.repo.GetSubscription(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPaused, sub.Status)

	events := f.events(c.ID)
	require.ElementsMatch(t, []string{"audit:company_frozen", "security:company_frozen", "billing:company_frozen"}, typesOf(events))
	for _, e := range events {
		switch e.Family {
		case eventlog.FamilyAudit:
			require.Equal(t, eventlog.SeverityWarn, e.Severity)
		case eventlog.FamilySecurity:
			require.Equal(t, eventlog.SeverityHigh, e.Severity)
		}
		require.Equal(t, "chargeback", e.Details["reason"])
	}
	require.Equal(t, []notify.Kind{notify.KindCompanyFrozen}, f.notifier.kinds())

	again, err := f.svc.FreezeCompany(asUser("owner"), service.FreezeInput{CompanyID: c.ID.String(), Action: "freeze"})
	require.NoError(t, err)
	require.False(t, again.Changed)
	require.Equal(t, "Company is already frozen", again.Message)
	require.Len(t, f.events(c.ID), 3)
}

func TestUnfreezeCompany(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(false)
	f.subscribe(c.ID, f.pro, lifecycle.StatusPaused, days(20), nil)

	res, err := f.svc.FreezeCompany(asUser("owner"), service.FreezeInput{CompanyID: c.ID.String(), Action: "unfreeze"})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.True(t, res.Company.IsActive)

	sub, err := f.repo.GetSubscription(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPaused, sub.Status)

	events := f.events(c.ID)
	require.ElementsMatch(t, []string{"audit:company_unfrozen", "security:company_unfrozen", "billing:company_unfrozen"}, typesOf(events))
}

func TestFreezeRequiresOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)

	_, err := f.svc.FreezeCompany(asUser("admin"), service.FreezeInput{CompanyID: c.ID.String(), Action: "freeze"})
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.FreezeCompany(asUser("stranger"), service.FreezeInput{CompanyID: c.ID.String(), Action: "freeze"})
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.FreezeCompany(asUser("owner"), service.FreezeInput{CompanyID: c.ID.String(), Action: "pause"})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "action")

	company, err := f.repo.GetCompany(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, company.IsActive)
}

func TestHealthSweepScenarios(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	overdue := f.company(true)
	f.subscribe(overdue.ID, f.pro, lifecycle.StatusPastDue, days(-10), nil)

	atGrace := f.company(true)
	f.subscribe(atGrace.ID, f.pro, lifecycle.StatusPastDue, days(-7), nil)

	recovered := f.company(false)
	f.subscribe(recovered.ID, f.pro, lifecycle.StatusActive, days(25), nil)

	staleTrial := f.company(true)
	f.subscribe(staleTrial.ID, f.free, lifecycle.StatusTrialing, nil, days(-10))

	healthy := f.company(true)
	f.subscribe(healthy.ID, f.pro, lifecycle.StatusActive, days(3), nil)

	broken := f.company(true)
	f.subscribe(broken.ID, f.pro, lifecycle.StatusActive, nil, nil)

	summary, err := f.svc.RunHealthSweep(context.Background(), service.SweepOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 5, summary.Checked, "skipped records are not counted as checked")
	require.Equal(t, 2, summary.Frozen)
	require.Equal(t, 1, summary.Unfrozen)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.Errors)

	actions := map[uuid.UUID]service.SweepAction{}
	for _, d := range summary.Details {
		actions[d.CompanyID] = d.Action
	}
	require.Equal(t, service.SweepFreeze, actions[overdue.ID])
	require.Equal(t, service.SweepNone, actions[atGrace.ID])
	require.Equal(t, service.SweepUnfreeze, actions[recovered.ID])
	require.Equal(t, service.SweepFreeze, actions[staleTrial.ID])
	require.Equal(t, service.SweepNone, actions[healthy.ID])
	require.Equal(t, service.SweepSkipped, actions[broken.ID])

	for id, wantActive := range map[uuid.UUID]bool{overdue.ID: false, atGrace.ID: true, recovered.ID: true, staleTrial.ID: false} {
		c, err := f.repo.GetCompany(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, wantActive, c.IsActive)
	}

	sub, err := f.repo.GetSubscription(context.Background(), overdue.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusPaused, sub.Status)

	frozenEvents := f.events(overdue.ID)
	require.ElementsMatch(t, []string{"audit:company_frozen", "security:company_frozen", "billing:company_frozen"}, typesOf(frozenEvents))
	for _, e := range frozenEvents {
		require.Equal(t, "system", e.ActorKind)
		require.Nil(t, e.ActorID)
		require.Equal(t, 10, e.Details["days_past_due"])
	}
	require.ElementsMatch(t, []string{"audit:company_unfrozen", "billing:company_unfrozen"}, typesOf(f.events(recovered.ID)))
	require.Empty(t, f.events(atGrace.ID))
}

func TestHealthSweepIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.pro, lifecycle.StatusPastDue, days(-30), nil)

	first, err := f.svc.RunHealthSweep(context.Background(), service.SweepOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Frozen)
	require.Len(t, f.events(c.ID), 3)

	second, err := f.svc.RunHealthSweep(context.Background(), service.SweepOptions{})
	require.NoError(t, err)
	require.Zero(t, second.Frozen)
	require.Zero(t, second.Unfrozen)
	require.Len(t, f.events(c.ID), 3)
}

func TestHealthSweepDryRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.pro, lifecycle.StatusPastDue, days(-30), nil)

	summary, err := f.svc.RunHealthSweep(context.Background(), service.SweepOptions{DryRun: true})
	require.NoError(t, err)
	require.True(t, summary.DryRun)
	require.Equal(t, 1, summary.Frozen)

	company, err := f.repo.GetCompany(context.Background(), c.ID)
	require.NoError(t, err)
	require.True(t, company.IsActive)
	require.Empty(t, f.events(c.ID))
}

func TestHealthSweepRejectsConcurrentRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	release, ok, err := f.locker.TryLock(context.Background(), service.JobHealthSweep)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.RunHealthSweep(context.Background(), service.SweepOptions{})
	require.ErrorIs(t, err, service.ErrSweepInProgress)

	release()
	_, err = f.svc.RunHealthSweep(context.Background(), service.SweepOptions{})
	require.NoError(t, err)
}

func TestHealthSweepCountsLogFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.pro, lifecycle.StatusPastDue, days(-30), nil)

	rejecting := &rejectingSink{err: errors.New("buffer full")}
	svc := service.New(service.Deps{
		Repo:   f.repo,
		Locker: f.locker,
		Events: rejecting,
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return fixedNow },
	}, service.DefaultConfig())

	summary, err := svc.RunHealthSweep(context.Background(), service.SweepOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Frozen)
	require.Equal(t, 3, summary.Errors)
}

type rejectingSink struct{ err error }

func (s *rejectingSink) Emit(context.Context, eventlog.Event) error { return s.err }

func TestTrialSweep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	expired := f.company(true)
	f.subscribe(expired.ID, f.free, lifecycle.StatusTrialing, days(-2), days(-2))

	longExpired := f.company(true)
	f.subscribe(longExpired.ID, f.free, lifecycle.StatusTrialing, days(-9), days(-9))

	warnThree := f.company(true)
	end := fixedNow.Add(2*24*time.Hour + time.Hour)
	f.subscribe(warnThree.ID, f.free, lifecycle.StatusTrialing, &end, &end)

	noWarning := f.company(true)
	f.subscribe(noWarning.ID, f.free, lifecycle.StatusTrialing, days(5), days(5))

	summary, err := f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.TrialsExpired)
	require.Equal(t, 1, summary.TrialWarningsSent)
	require.Equal(t, 1, summary.CompaniesFrozen)
	require.Zero(t, summary.Errors)

	sub, err := f.repo.GetSubscription(context.Background(), expired.ID)
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusTrialExpired, sub.Status)
	require.Nil(t, sub.TrialEndsAt)
	require.True(t, days(-2).Equal(*sub.CurrentPeriodEnd))

	require.Contains(t, typesOf(f.events(expired.ID)), "billing:trial_expired")
	require.Contains(t, typesOf(f.events(longExpired.ID)), "billing:company_frozen")

	kinds := f.notifier.kinds()
	require.Contains(t, kinds, notify.TrialWarning(3))
	require.NotContains(t, kinds, notify.TrialWarning(5))

	// Same day: warnings are not repeated.
	again, err := f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, again.TrialsExpired)
	require.Zero(t, again.TrialWarningsSent)
}

func TestTrialSweepRetriesFailedNotices(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	end := fixedNow.Add(6*24*time.Hour + time.Hour)
	f.subscribe(c.ID, f.free, lifecycle.StatusTrialing, &end, &end)

	f.notifier.fail = func(notify.Message) error { return errors.New("provider down") }
	summary, err := f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.TrialWarningsSent)
	require.Equal(t, 1, summary.Errors)

	f.notifier.mu.Lock()
	f.notifier.fail = nil
	f.notifier.mu.Unlock()

	summary, err = f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.TrialWarningsSent)
	require.Equal(t, []notify.Kind{notify.TrialWarning(7)}, f.notifier.kinds())
}

func TestTrialSweepRetriesFailedExpiryNotice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)
	f.subscribe(c.ID, f.free, lifecycle.StatusTrialing, days(-2), days(-2))

	f.notifier.fail = func(notify.Message) error { return errors.New("provider down") }
	summary, err := f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.TrialsExpired)
	require.Equal(t, 1, summary.Errors)
	require.Empty(t, f.notifier.kinds())

	f.notifier.mu.Lock()
	f.notifier.fail = nil
	f.notifier.mu.Unlock()

	summary, err = f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.TrialsExpired)
	require.Zero(t, summary.Errors)
	require.Equal(t, []notify.Kind{notify.KindTrialExpired}, f.notifier.kinds())

	// Delivered notices are not repeated.
	_, err = f.svc.RunTrialSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []notify.Kind{notify.KindTrialExpired}, f.notifier.kinds())
}

func TestStartSubscriptionStartsTrial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.company(true)

	sub, err := f.svc.StartSubscription(context.Background(), service.StartInput{CompanyID: c.ID, PlanID: f.free.ID})
	require.NoError(t, err)
	require.Equal(t, lifecycle.StatusTrialing, sub.Status)
	require.True(t, days(14).Equal(*sub.TrialEndsAt))

	_, err = f.svc.StartSubscription(context.Background(), service.StartInput{CompanyID: c.ID, PlanID: f.pro.ID})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
}
