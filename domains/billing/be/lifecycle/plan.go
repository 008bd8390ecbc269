package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingInterval is the billing frequency of a subscription.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// ParseBillingInterval converts a stored or requested value; empty defaults to monthly.
func ParseBillingInterval(s string) (BillingInterval, error) {
	switch interval := BillingInterval(s); interval {
	case "":
		return IntervalMonthly, nil
	case IntervalMonthly, IntervalYearly:
		return interval, nil
	default:
		return "", fmt.Errorf("unknown billing interval %q", s)
	}
}

// PeriodEnd returns the end of a billing period starting at start.
func (i BillingInterval) PeriodEnd(start time.Time) time.Time {
	if i == IntervalYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// Plan is a catalog entry a company can subscribe to.
type Plan struct {
	ID               uuid.UUID
	Name             string
	PriceMonthly     decimal.Decimal
	PriceYearly      decimal.Decimal
	IsActive         bool
	TrialEnabled     bool
	TrialDefaultDays int
}

// IsFree reports whether both prices are zero.
func (p Plan) IsFree() bool {
	return p.PriceMonthly.IsZero() && p.PriceYearly.IsZero()
}

// Price returns the list price for the interval.
func (p Plan) Price(interval BillingInterval) decimal.Decimal {
	if interval == IntervalYearly {
		return p.PriceYearly
	}
	return p.PriceMonthly
}

// monthlyEquivalent normalises the interval price so monthly and yearly plans compare.
func (p Plan) monthlyEquivalent(interval BillingInterval) decimal.Decimal {
	if interval == IntervalYearly {
		return p.PriceYearly.Div(decimal.NewFromInt(12))
	}
	return p.PriceMonthly
}

// ChangeKind classifies a plan assignment for the billing log.
type ChangeKind string

const (
	ChangeCreated    ChangeKind = "created"
	ChangeUpgraded   ChangeKind = "upgraded"
	ChangeDowngraded ChangeKind = "downgraded"
)

// Term captures the current subscription terms a plan change starts from.
type Term struct {
	Status      SubscriptionStatus
	Interval    BillingInterval
	PeriodStart time.Time
	PeriodEnd   *time.Time
	TrialEndsAt *time.Time
}

// Transition is the subscription state a plan assignment produces.
type Transition struct {
	Status      SubscriptionStatus
	PeriodStart time.Time
	PeriodEnd   *time.Time
	TrialEndsAt *time.Time
	TrialEnded  bool
	Change      ChangeKind
}

// DecidePlanTransition applies the plan assignment decision table.
//
//   - no current subscription: active, no trial
//   - paid target: active, any running trial ends immediately
//   - free target while trialing: trial continues with its original dates
//   - free target otherwise: active, no trial
//
// previous is the plan of the current subscription when it is still resolvable.
func DecidePlanTransition(current *Term, previous *Plan, target Plan, interval BillingInterval, now time.Time) Transition {
	fresh := func() Transition {
		end := interval.PeriodEnd(now)
		return Transition{Status: StatusActive, PeriodStart: now, PeriodEnd: &end}
	}

	if current == nil {
		t := fresh()
		t.Change = ChangeCreated
		return t
	}

	change := classifyChange(previous, current.Interval, target, interval)

	if target.IsFree() && current.Status == StatusTrialing {
		return Transition{
			Status:      StatusTrialing,
			PeriodStart: current.PeriodStart,
			PeriodEnd:   copyTime(current.PeriodEnd),
			TrialEndsAt: copyTime(current.TrialEndsAt),
			Change:      change,
		}
	}

	t := fresh()
	t.TrialEnded = current.Status == StatusTrialing
	t.Change = change
	return t
}

// NewTrial returns the transition for a company starting on a plan trial.
func NewTrial(plan Plan, now time.Time) (Transition, bool) {
	if !plan.TrialEnabled || plan.TrialDefaultDays <= 0 {
		return Transition{}, false
	}
	ends := now.AddDate(0, 0, plan.TrialDefaultDays)
	periodEnd := ends
	return Transition{
		Status:      StatusTrialing,
		PeriodStart: now,
		PeriodEnd:   &periodEnd,
		TrialEndsAt: &ends,
		Change:      ChangeCreated,
	}, true
}

func classifyChange(previous *Plan, previousInterval BillingInterval, target Plan, interval BillingInterval) ChangeKind {
	oldPrice := decimal.Zero
	if previous != nil {
		oldPrice = previous.monthlyEquivalent(previousInterval)
	}
	if target.monthlyEquivalent(interval).GreaterThan(oldPrice) {
		return ChangeUpgraded
	}
	return ChangeDowngraded
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
