// Package lifecycle holds the side-effect free rules of the subscription lifecycle: the freeze
// evaluation applied by the health sweep, the plan assignment decision table, and the
// write-gate status mirrored to clients.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultGracePeriodDays is used when no grace period is configured.
const DefaultGracePeriodDays = 7

const day = 24 * time.Hour

// ErrMalformedSnapshot marks a subscription that cannot be evaluated (e.g. a missing period end
// on a non-trialing subscription). Sweeps skip these rows instead of failing.
var ErrMalformedSnapshot = errors.New("malformed subscription snapshot")

// SubscriptionStatus is the persisted status of a company subscription.
type SubscriptionStatus string

const (
	StatusTrialing     SubscriptionStatus = "trialing"
	StatusActive       SubscriptionStatus = "active"
	StatusPastDue      SubscriptionStatus = "past_due"
	StatusPaused       SubscriptionStatus = "paused"
	StatusCanceled     SubscriptionStatus = "canceled"
	StatusTrialExpired SubscriptionStatus = "trial_expired"
)

// ParseSubscriptionStatus converts a stored value into a SubscriptionStatus.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch status := SubscriptionStatus(s); status {
	case StatusTrialing, StatusActive, StatusPastDue, StatusPaused, StatusCanceled, StatusTrialExpired:
		return status, nil
	default:
		return "", fmt.Errorf("unknown subscription status %q", s)
	}
}

// Snapshot is the subset of a subscription and its company needed to evaluate the freeze rule.
type Snapshot struct {
	CompanyID        uuid.UUID
	CompanyActive    bool
	Status           SubscriptionStatus
	CurrentPeriodEnd *time.Time
	TrialEndsAt      *time.Time
}

// Decision is the outcome of Evaluate.
type Decision struct {
	ShouldFreeze   bool
	ShouldUnfreeze bool
	DaysPastDue    int
}

// Evaluate applies the freeze rule to a single snapshot.
//
// Days past due are counted from the period end when the subscription is past due or its period
// has lapsed, otherwise from the trial end for an overdue trial. A company is frozen only once it
// is strictly more than graceDays past due, and a frozen company whose subscription is current
// again (active or trialing) is eligible for restoration.
func Evaluate(s Snapshot, now time.Time, graceDays int) (Decision, error) {
	if s.CurrentPeriodEnd == nil && s.Status != StatusTrialing {
		return Decision{}, fmt.Errorf("%w: company %s has no current period end (status %s)", ErrMalformedSnapshot, s.CompanyID, s.Status)
	}
	if graceDays < 0 {
		graceDays = 0
	}

	var daysPastDue int
	switch {
	case s.CurrentPeriodEnd != nil && (s.Status == StatusPastDue || s.CurrentPeriodEnd.Before(now)):
		daysPastDue = wholeDaysBetween(*s.CurrentPeriodEnd, now)
	case s.Status == StatusTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.Before(now):
		daysPastDue = wholeDaysBetween(*s.TrialEndsAt, now)
	}

	shouldFreeze := daysPastDue > graceDays
	shouldUnfreeze := !shouldFreeze && !s.CompanyActive &&
		(s.Status == StatusActive || s.Status == StatusTrialing)

	return Decision{
		ShouldFreeze:   shouldFreeze,
		ShouldUnfreeze: shouldUnfreeze,
		DaysPastDue:    daysPastDue,
	}, nil
}

// DaysUntil returns the number of started days between now and t, rounding up. Past instants yield 0.
func DaysUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// wholeDaysBetween floors the elapsed time between from and to in days; never negative.
func wholeDaysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / day)
}
