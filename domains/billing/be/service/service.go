package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/notify"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

// Sweep lease keys.
const (
	JobHealthSweep = "check-subscription-health"
	JobTrialSweep  = "cron-subscription-health"
)

// Config holds the lifecycle tunables.
type Config struct {
	GracePeriodDays   int
	TrialWarningDays  []int
	NotifyConcurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriodDays:   lifecycle.DefaultGracePeriodDays,
		TrialWarningDays:  []int{7, 3, 1},
		NotifyConcurrency: 4,
	}
}

// Deps are the collaborators of the billing service. Repo, Locker and Events are required.
type Deps struct {
	Repo     Repository
	Locker   Locker
	Events   EventSink
	Notifier notify.Notifier
	Reports  ReportArchive
	Metrics  *metrics.BillingMetrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// AssignPlanInput is the plan assignment command.
type AssignPlanInput struct {
	CompanyID            string  `json:"company_id" validate:"required,uuid"`
	PlanID               string  `json:"plan_id" validate:"required,uuid"`
	BillingInterval      string  `json:"billing_interval" validate:"omitempty,oneof=monthly yearly"`
	StripeCustomerID     *string `json:"stripe_customer_id" validate:"omitempty,max=255"`
	StripeSubscriptionID *string `json:"stripe_subscription_id" validate:"omitempty,max=255"`
}

// AssignPlanResult reports the saved subscription.
type AssignPlanResult struct {
	Subscription Subscription
	TrialEnded   bool
	Change       lifecycle.ChangeKind
	Message      string
}

// FreezeAction selects the direction of FreezeCompany.
type FreezeAction string

const (
	ActionFreeze   FreezeAction = "freeze"
	ActionUnfreeze FreezeAction = "unfreeze"
)

// FreezeInput is the freeze/unfreeze command.
type FreezeInput struct {
	CompanyID string  `json:"company_id" validate:"required,uuid"`
	Action    string  `json:"action" validate:"required,oneof=freeze unfreeze"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

// FreezeResult reports whether the company changed state.
type FreezeResult struct {
	Changed bool
	Company Company
	Message string
}

// StartInput opens the first subscription of a company from a system context.
type StartInput struct {
	CompanyID uuid.UUID
	PlanID    uuid.UUID
	Interval  lifecycle.BillingInterval
}

// Service defines the billing lifecycle operations.
type Service interface {
	AssignPlan(ctx context.Context, input AssignPlanInput) (AssignPlanResult, error)
	FreezeCompany(ctx context.Context, input FreezeInput) (FreezeResult, error)
	StartSubscription(ctx context.Context, input StartInput) (Subscription, error)
	RunHealthSweep(ctx context.Context, opts SweepOptions) (SweepSummary, error)
	RunTrialSweep(ctx context.Context) (TrialSweepSummary, error)
}

type service struct {
	repo     Repository
	locker   Locker
	events   EventSink
	notifier notify.Notifier
	reports  ReportArchive
	metrics  *metrics.BillingMetrics
	logger   *zap.Logger
	now      func() time.Time
	cfg      Config
}

// New constructs the billing Service.
func New(deps Deps, cfg Config) Service {
	if deps.Repo == nil {
		panic("billing repository is required")
	}
	if deps.Locker == nil {
		panic("billing locker is required")
	}
	if deps.Events == nil {
		panic("billing event sink is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.GracePeriodDays < 0 {
		cfg.GracePeriodDays = lifecycle.DefaultGracePeriodDays
	}
	if cfg.NotifyConcurrency <= 0 {
		cfg.NotifyConcurrency = 1
	}

	return &service{
		repo:     deps.Repo,
		locker:   deps.Locker,
		events:   deps.Events,
		notifier: deps.Notifier,
		reports:  deps.Reports,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		cfg:      cfg,
	}
}

func (s *service) AssignPlan(ctx context.Context, input AssignPlanInput) (result AssignPlanResult, err error) {
	defer func() { s.metrics.Command("assign_plan", outcome(err)) }()

	if err := validateInput(input); err != nil {
		return AssignPlanResult{}, err
	}
	companyID := uuid.MustParse(input.CompanyID)
	planID := uuid.MustParse(input.PlanID)
	interval, err := lifecycle.ParseBillingInterval(input.BillingInterval)
	if err != nil {
		return AssignPlanResult{}, &ValidationError{Fields: FieldErrors{"billing_interval": {err.Error()}}}
	}

	if err := s.authorize(ctx, companyID, RoleOwner, RoleAdmin); err != nil {
		return AssignPlanResult{}, err
	}

	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return AssignPlanResult{}, fmt.Errorf("load company: %w", err)
	}
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return AssignPlanResult{}, fmt.Errorf("load plan: %w", err)
	}
	if !plan.IsActive {
		return AssignPlanResult{}, fmt.Errorf("%w: plan %s is not active", ErrNotFound, planID)
	}

	var (
		current  *Subscription
		term     *lifecycle.Term
		previous *lifecycle.Plan
	)
	existing, err := s.repo.GetSubscription(ctx, companyID)
	switch {
	case err == nil:
		current = &existing
		term = &lifecycle.Term{
			Status:      existing.Status,
			Interval:    existing.Interval,
			PeriodStart: existing.CurrentPeriodStart,
			PeriodEnd:   existing.CurrentPeriodEnd,
			TrialEndsAt: existing.TrialEndsAt,
		}
		if prev, err := s.repo.GetPlan(ctx, existing.PlanID); err == nil {
			previous = &prev
		} else if !errors.Is(err, ErrNotFound) {
			return AssignPlanResult{}, fmt.Errorf("load current plan: %w", err)
		}
	case errors.Is(err, ErrNotFound):
	default:
		return AssignPlanResult{}, fmt.Errorf("load subscription: %w", err)
	}

	now := s.now().UTC()
	tr := lifecycle.DecidePlanTransition(term, previous, plan, interval, now)

	next := Subscription{
		CompanyID:            companyID,
		PlanID:               plan.ID,
		Status:               tr.Status,
		Interval:             interval,
		CurrentPeriodStart:   tr.PeriodStart,
		CurrentPeriodEnd:     tr.PeriodEnd,
		TrialEndsAt:          tr.TrialEndsAt,
		StripeCustomerID:     input.StripeCustomerID,
		StripeSubscriptionID: input.StripeSubscriptionID,
	}
	if current != nil {
		next.ID = current.ID
	}

	saved, err := s.repo.SaveSubscription(ctx, next)
	if err != nil {
		return AssignPlanResult{}, fmt.Errorf("save subscription: %w", err)
	}

	oldValues := map[string]any{}
	if current != nil {
		oldValues["plan_id"] = current.PlanID.String()
		oldValues["status"] = string(current.Status)
		if previous != nil {
			oldValues["plan_name"] = previous.Name
		}
	}
	newValues := map[string]any{
		"plan_id":          plan.ID.String(),
		"plan_name":        plan.Name,
		"status":           string(saved.Status),
		"billing_interval": string(saved.Interval),
	}
	s.emit(ctx,
		eventlog.Audit(companyID, eventlog.AuditPlanChanged, eventlog.SeverityInfo, oldValues, newValues, nil),
		eventlog.Billing(companyID, billingTypeFor(tr.Change), oldValues, newValues, map[string]any{
			"trial_ended": tr.TrialEnded,
			"price":       plan.Price(interval).StringFixed(2),
		}),
	)

	message := "Plan assigned successfully"
	if tr.TrialEnded {
		message = "Plan assigned successfully. Your trial has ended and the new plan is active."
	}

	s.logger.Info("plan assigned",
		zap.Stringer("company_id", companyID),
		zap.Stringer("plan_id", plan.ID),
		zap.String("change", string(tr.Change)),
		zap.Bool("trial_ended", tr.TrialEnded),
	)

	return AssignPlanResult{Subscription: saved, TrialEnded: tr.TrialEnded, Change: tr.Change, Message: message}, nil
}

func (s *service) FreezeCompany(ctx context.Context, input FreezeInput) (result FreezeResult, err error) {
	defer func() { s.metrics.Command("freeze_company", outcome(err)) }()

	if err := validateInput(input); err != nil {
		return FreezeResult{}, err
	}
	companyID := uuid.MustParse(input.CompanyID)
	action := FreezeAction(input.Action)

	if err := s.authorize(ctx, companyID, RoleOwner); err != nil {
		return FreezeResult{}, err
	}

	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return FreezeResult{}, fmt.Errorf("load company: %w", err)
	}

	wantActive := action == ActionUnfreeze
	if company.IsActive == wantActive {
		return FreezeResult{Company: company, Message: alreadyMessage(action)}, nil
	}

	changed, err := s.repo.SetCompaniesActive(ctx, []uuid.UUID{companyID}, wantActive, !wantActive)
	if err != nil {
		return FreezeResult{}, fmt.Errorf("%s company: %w", action, err)
	}
	if len(changed) == 0 {
		// Another writer got there first; the company is already in the requested state.
		company.IsActive = wantActive
		return FreezeResult{Company: company, Message: alreadyMessage(action)}, nil
	}
	company.IsActive = wantActive

	details := map[string]any{"source": "manual"}
	if input.Reason != nil && *input.Reason != "" {
		details["reason"] = *input.Reason
	}
	s.emit(ctx, changeEvents(companyID, action, details, true)...)

	if action == ActionFreeze {
		s.metrics.CompaniesFrozen("manual", 1)
	} else {
		s.metrics.CompaniesUnfrozen("manual", 1)
	}

	kind := notify.KindCompanyFrozen
	if action == ActionUnfreeze {
		kind = notify.KindCompanyUnfrozen
	}
	data := map[string]any{"company_name": company.Name}
	if reason, ok := details["reason"]; ok {
		data["reason"] = reason
	}
	s.notifyOwners(ctx, companyID, kind, data)

	s.logger.Info("company state changed",
		zap.Stringer("company_id", companyID),
		zap.String("action", string(action)),
	)

	message := "Company frozen successfully"
	if action == ActionUnfreeze {
		message = "Company unfrozen successfully"
	}
	return FreezeResult{Changed: true, Company: company, Message: message}, nil
}

func (s *service) StartSubscription(ctx context.Context, input StartInput) (Subscription, error) {
	plan, err := s.repo.GetPlan(ctx, input.PlanID)
	if err != nil {
		return Subscription{}, fmt.Errorf("load plan: %w", err)
	}
	if !plan.IsActive {
		return Subscription{}, fmt.Errorf("%w: plan %s is not active", ErrNotFound, input.PlanID)
	}
	if _, err := s.repo.GetSubscription(ctx, input.CompanyID); err == nil {
		return Subscription{}, &ValidationError{Fields: FieldErrors{"company_id": {"already has a subscription"}}}
	} else if !errors.Is(err, ErrNotFound) {
		return Subscription{}, fmt.Errorf("load subscription: %w", err)
	}

	interval := input.Interval
	if interval == "" {
		interval = lifecycle.IntervalMonthly
	}
	now := s.now().UTC()
	tr, trial := lifecycle.NewTrial(plan, now)
	if !trial {
		tr = lifecycle.DecidePlanTransition(nil, nil, plan, interval, now)
	}

	saved, err := s.repo.SaveSubscription(ctx, Subscription{
		CompanyID:          input.CompanyID,
		PlanID:             plan.ID,
		Status:             tr.Status,
		Interval:           interval,
		CurrentPeriodStart: tr.PeriodStart,
		CurrentPeriodEnd:   tr.PeriodEnd,
		TrialEndsAt:        tr.TrialEndsAt,
	})
	if err != nil {
		return Subscription{}, fmt.Errorf("save subscription: %w", err)
	}

	newValues := map[string]any{"plan_id": plan.ID.String(), "plan_name": plan.Name, "status": string(saved.Status)}
	s.emit(ctx, eventlog.Billing(input.CompanyID, eventlog.BillingSubscriptionCreated, nil, newValues,
		map[string]any{"trial": trial}))
	return saved, nil
}

// authorize requires an authenticated user holding one of roles as an active member of the company.
func (s *service) authorize(ctx context.Context, companyID uuid.UUID, roles ...Role) error {
	audit, ok := requesttrace.FromContext(ctx)
	if !ok || audit.ActorKind != requesttrace.ActorKindUser || audit.UserID == nil || *audit.UserID == "" {
		return ErrUnauthorized
	}

	member, err := s.repo.GetMember(ctx, companyID, *audit.UserID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: not a member of company %s", ErrForbidden, companyID)
	}
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	if !member.IsActive || !slices.Contains(roles, member.Role) {
		return fmt.Errorf("%w: role %s may not perform this action", ErrForbidden, member.Role)
	}
	return nil
}

// emit hands events to the sink and returns how many were rejected. Rejections never fail the caller.
func (s *service) emit(ctx context.Context, events ...eventlog.Event) int {
	failures := 0
	for _, e := range events {
		if err := s.events.Emit(ctx, e); err != nil {
			failures++
			s.metrics.EventDropped()
			s.logger.Warn("emit log event",
				zap.String("family", string(e.Family)),
				zap.String("type", e.Type),
				zap.Error(err),
			)
		}
	}
	return failures
}

// changeEvents builds the log entries of a freeze or unfreeze. Security events are written for
// manual changes and sweep freezes.
func changeEvents(companyID uuid.UUID, action FreezeAction, details map[string]any, withSecurity bool) []eventlog.Event {
	oldValues := map[string]any{"is_active": action == ActionFreeze}
	newValues := map[string]any{"is_active": action == ActionUnfreeze}

	if action == ActionFreeze {
		events := []eventlog.Event{
			eventlog.Audit(companyID, eventlog.AuditCompanyFrozen, eventlog.SeverityWarn, oldValues, newValues, details),
		}
		if withSecurity {
			events = append(events, eventlog.Security(companyID, eventlog.SecurityCompanyFrozen, eventlog.SeverityHigh, details))
		}
		return append(events, eventlog.Billing(companyID, eventlog.BillingCompanyFrozen, oldValues, newValues, details))
	}

	events := []eventlog.Event{
		eventlog.Audit(companyID, eventlog.AuditCompanyUnfrozen, eventlog.SeverityInfo, oldValues, newValues, details),
	}
	if withSecurity {
		events = append(events, eventlog.Security(companyID, eventlog.SecurityCompanyUnfrozen, eventlog.SeverityLow, details))
	}
	return append(events, eventlog.Billing(companyID, eventlog.BillingCompanyUnfrozen, oldValues, newValues, details))
}

func billingTypeFor(change lifecycle.ChangeKind) string {
	switch change {
	case lifecycle.ChangeUpgraded:
		return eventlog.BillingSubscriptionUpgraded
	case lifecycle.ChangeDowngraded:
		return eventlog.BillingSubscriptionDowngraded
	default:
		return eventlog.BillingSubscriptionCreated
	}
}

func alreadyMessage(action FreezeAction) string {
	if action == ActionFreeze {
		return "Company is already frozen"
	}
	return "Company is already active"
}

func outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return "denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
