package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

// Service defines company operations.
type Service interface {
	Access(ctx context.Context, companyID uuid.UUID) (lifecycle.AccessState, error)
	UpdateName(ctx context.Context, companyID uuid.UUID, input UpdateInput) (Company, error)
	Provision(ctx context.Context, input ProvisionInput) (Company, error)
}

// Option customizes the service.
type Option func(*service)

// WithClock replaces the wall clock used for trial expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

type service struct {
	repo   Repository
	events EventSink
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a company Service.
func New(repo Repository, events EventSink, logger *zap.Logger, opts ...Option) Service {
	if repo == nil {
		panic("company repository is required")
	}
	if events == nil {
		panic("company event sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{repo: repo, events: events, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Access reports whether the company accepts writes. Any active member may ask.
func (s *service) Access(ctx context.Context, companyID uuid.UUID) (lifecycle.AccessState, error) {
	if err := s.authorize(ctx, companyID); err != nil {
		return lifecycle.AccessState{}, err
	}

	company, err := s.repo.Get(ctx, companyID)
	if err != nil {
		return lifecycle.AccessState{}, fmt.Errorf("load company: %w", err)
	}

	in := lifecycle.AccessInput{CompanyActive: company.IsActive}
	state, err := s.repo.GetSubscriptionState(ctx, companyID)
	switch {
	case err == nil:
		in.Status = &state.Status
		in.TrialEndsAt = state.TrialEndsAt
	case errors.Is(err, ErrNotFound):
	default:
		return lifecycle.AccessState{}, fmt.Errorf("load subscription: %w", err)
	}

	return lifecycle.AccessStateFor(in, s.now().UTC()), nil
}

func (s *service) UpdateName(ctx context.Context, companyID uuid.UUID, input UpdateInput) (Company, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return Company{}, err
	}
	if err := s.authorize(ctx, companyID, RoleOwner, RoleAdmin); err != nil {
		return Company{}, err
	}

	current, err := s.repo.Get(ctx, companyID)
	if err != nil {
		return Company{}, fmt.Errorf("load company: %w", err)
	}
	if !current.IsActive {
		return Company{}, fmt.Errorf("%w: %s", ErrFrozen, companyID)
	}
	if current.Name == input.Name {
		return current, nil
	}

	updated, err := s.repo.UpdateName(ctx, companyID, input.Name)
	if err != nil {
		return Company{}, fmt.Errorf("update company: %w", err)
	}

	s.emit(ctx, eventlog.Audit(companyID, eventlog.AuditCompanyUpdated, eventlog.SeverityInfo,
		map[string]any{"name": current.Name},
		map[string]any{"name": updated.Name},
		nil,
	))
	s.logger.Info("company renamed", zap.Stringer("company_id", companyID))
	return updated, nil
}

// Provision creates an active company and its owner membership. It runs from operator tooling,
// so no caller membership is checked.
func (s *service) Provision(ctx context.Context, input ProvisionInput) (Company, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.OwnerEmail = strings.ToLower(strings.TrimSpace(input.OwnerEmail))
	if err := validateInput(input); err != nil {
		return Company{}, err
	}

	var (
		slug string
		err  error
	)
	if input.Slug != "" {
		slug, err = persistence.NormalizeSlug(input.Slug)
	} else {
		slug, err = persistence.SlugFromName(input.Name)
	}
	if err != nil {
		return Company{}, &ValidationError{Fields: FieldErrors{"slug": {err.Error()}}}
	}

	created, err := s.repo.Create(ctx, Company{
		ID:       uuid.New(),
		Name:     input.Name,
		Slug:     slug,
		IsActive: true,
	})
	if err != nil {
		return Company{}, fmt.Errorf("create company: %w", err)
	}

	if _, err := s.repo.UpsertMember(ctx, Member{
		CompanyID: created.ID,
		UserID:    input.OwnerUserID,
		Email:     input.OwnerEmail,
		Role:      RoleOwner,
		IsActive:  true,
	}); err != nil {
		return Company{}, fmt.Errorf("add owner: %w", err)
	}

	s.emit(ctx, eventlog.Audit(created.ID, eventlog.AuditCompanyUpdated, eventlog.SeverityInfo, nil,
		map[string]any{"name": created.Name, "slug": created.Slug, "owner_user_id": input.OwnerUserID},
		map[string]any{"source": "provision"},
	))
	s.logger.Info("company provisioned",
		zap.Stringer("company_id", created.ID),
		zap.String("slug", created.Slug),
	)
	return created, nil
}

// authorize requires an authenticated active member of the company. When roles are given the
// member must hold one of them.
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
	if !member.IsActive {
		return fmt.Errorf("%w: membership is inactive", ErrForbidden)
	}
	if len(roles) > 0 && !slices.Contains(roles, member.Role) {
		return fmt.Errorf("%w: role %s may not perform this action", ErrForbidden, member.Role)
	}
	return nil
}

func (s *service) emit(ctx context.Context, events ...eventlog.Event) {
	for _, e := range events {
		if err := s.events.Emit(ctx, e); err != nil {
			s.logger.Warn("emit log event", zap.String("type", e.Type), zap.Error(err))
		}
	}
}
