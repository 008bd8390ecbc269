package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
)

// Domain sentinel errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("authentication required")
	ErrSweepInProgress = errors.New("sweep already in progress")
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Role is a company membership role.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Company is the tenant whose is_active flag is the authoritative freeze state.
type Company struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member links a user to a company with a role.
type Member struct {
	CompanyID uuid.UUID
	UserID    string
	Email     string
	Role      Role
	IsActive  bool
}

// Subscription is the single subscription of a company.
type Subscription struct {
	ID                   uuid.UUID
	CompanyID            uuid.UUID
	PlanID               uuid.UUID
	Status               lifecycle.SubscriptionStatus
	Interval             lifecycle.BillingInterval
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     *time.Time
	TrialEndsAt          *time.Time
	StripeCustomerID     *string
	StripeSubscriptionID *string
	UpdatedAt            time.Time
}

// CompanySnapshot is a lifecycle snapshot plus the display name used in notices.
type CompanySnapshot struct {
	lifecycle.Snapshot
	CompanyName string
}

// ExpiredTrial is a trial moved to trial_expired by the trial sweep.
type ExpiredTrial struct {
	CompanyID   uuid.UUID
	CompanyName string
	TrialEnded  time.Time
}

// Repository defines the persistence operations required by the billing service.
type Repository interface {
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	GetMember(ctx context.Context, companyID uuid.UUID, userID string) (Member, error)
	MemberEmails(ctx context.Context, companyID uuid.UUID, roles []Role) ([]string, error)
	GetPlan(ctx context.Context, id uuid.UUID) (lifecycle.Plan, error)
	GetSubscription(ctx context.Context, companyID uuid.UUID) (Subscription, error)
	SaveSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	// SetCompaniesActive flips is_active for companies not already in that state and returns the
	// ids that changed. pauseSubscriptions pauses their subscriptions in the same transaction.
	SetCompaniesActive(ctx context.Context, ids []uuid.UUID, active, pauseSubscriptions bool) ([]uuid.UUID, error)
	ListSnapshots(ctx context.Context) ([]CompanySnapshot, error)
	ExpireTrials(ctx context.Context, now time.Time) ([]ExpiredTrial, error)
	ListTrialing(ctx context.Context) ([]CompanySnapshot, error)
	// ListUnnotifiedExpiredTrials returns trial_expired subscriptions with no notice of kind on record.
	ListUnnotifiedExpiredTrials(ctx context.Context, kind string) ([]ExpiredTrial, error)
	ClaimNotification(ctx context.Context, companyID uuid.UUID, kind string, day time.Time) (bool, error)
	ReleaseNotification(ctx context.Context, companyID uuid.UUID, kind string, day time.Time) error
}

// Locker grants at-most-one leases for sweeps.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// EventSink accepts log events without blocking.
type EventSink interface {
	Emit(ctx context.Context, event eventlog.Event) error
}

// ReportArchive stores sweep reports and returns the object key.
type ReportArchive interface {
	Archive(ctx context.Context, job, runID string, report any) (string, error)
}
