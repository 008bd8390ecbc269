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
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("authentication required")
	ErrConflictSlug = errors.New("company slug already exists")
	ErrFrozen       = errors.New("company is frozen")
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

// Company represents a tenant of the payroll platform.
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

// SubscriptionState is the part of the subscription the write gate needs.
type SubscriptionState struct {
	Status      lifecycle.SubscriptionStatus
	TrialEndsAt *time.Time
}

// Repository abstracts persistence.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Company, error)
	Create(ctx context.Context, c Company) (Company, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (Company, error)
	GetMember(ctx context.Context, companyID uuid.UUID, userID string) (Member, error)
	UpsertMember(ctx context.Context, m Member) (Member, error)
	// GetSubscriptionState returns ErrNotFound when the company has no subscription.
	GetSubscriptionState(ctx context.Context, companyID uuid.UUID) (SubscriptionState, error)
}

// EventSink accepts log events without blocking.
type EventSink interface {
	Emit(ctx context.Context, event eventlog.Event) error
}

// UpdateInput is the company rename command.
type UpdateInput struct {
	Name string `json:"name" validate:"required,max=200"`
}

// ProvisionInput creates a company together with its owner membership.
type ProvisionInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"omitempty,max=100"`
	OwnerUserID string `json:"owner_user_id" validate:"required,max=128"`
	OwnerEmail  string `json:"owner_email" validate:"required,email"`
}
