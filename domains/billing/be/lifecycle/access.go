package lifecycle

import "time"

// AccessReason explains why a company cannot write. The empty reason means writes are allowed.
type AccessReason string

const (
	ReasonNone         AccessReason = ""
	ReasonFrozen       AccessReason = "frozen"
	ReasonTrialExpired AccessReason = "trial_expired"
	ReasonPastDue      AccessReason = "past_due"
	ReasonPaused       AccessReason = "paused"
	ReasonCanceled     AccessReason = "canceled"
	ReasonRestricted   AccessReason = "restricted"
)

var accessMessages = map[AccessReason]string{
	ReasonFrozen:       "This company is frozen. Changes are disabled until the account is restored.",
	ReasonTrialExpired: "Your trial has ended. Choose a plan to keep making changes.",
	ReasonPastDue:      "Your subscription payment is past due. Update billing to keep making changes.",
	ReasonPaused:       "Your subscription is paused. Resume it to make changes.",
	ReasonCanceled:     "Your subscription was canceled. Choose a plan to make changes.",
	ReasonRestricted:   "Changes are currently disabled for this company.",
}

// AccessInput is the tenant status the write gate is computed from.
type AccessInput struct {
	CompanyActive bool
	// Status is nil when the company has no subscription.
	Status      *SubscriptionStatus
	TrialEndsAt *time.Time
}

// AccessState is the write-gate outcome. It only mirrors server state for presentation;
// enforcement happens in the API write guard and in row-level policies.
type AccessState struct {
	Writable bool
	Reason   AccessReason
	Message  string
}

// AccessStateFor picks the reason with the static priority
// frozen > trial expired > past due > paused > canceled > restricted.
func AccessStateFor(in AccessInput, now time.Time) AccessState {
	reason := accessReason(in, now)
	if reason == ReasonNone {
		return AccessState{Writable: true}
	}
	return AccessState{Writable: false, Reason: reason, Message: accessMessages[reason]}
}

func accessReason(in AccessInput, now time.Time) AccessReason {
	if !in.CompanyActive {
		return ReasonFrozen
	}
	if in.Status == nil {
		return ReasonRestricted
	}

	switch status := *in.Status; {
	case status == StatusTrialExpired,
		status == StatusTrialing && in.TrialEndsAt != nil && in.TrialEndsAt.Before(now):
		return ReasonTrialExpired
	case status == StatusPastDue:
		return ReasonPastDue
	case status == StatusPaused:
		return ReasonPaused
	case status == StatusCanceled:
		return ReasonCanceled
	case status == StatusActive, status == StatusTrialing:
		return ReasonNone
	default:
		return ReasonRestricted
	}
}
