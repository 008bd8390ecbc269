package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
)

// PostgresRepository implements service.Repository on the shared persistence stores.
type PostgresRepository struct {
	companies     *persistence.CompanyStore
	subscriptions *persistence.SubscriptionStore
}

// NewPostgresRepository constructs a repository backed by the company and subscription stores.
func NewPostgresRepository(companies *persistence.CompanyStore, subscriptions *persistence.SubscriptionStore) *PostgresRepository {
	if companies == nil || subscriptions == nil {
		panic("company stores are required")
	}
	return &PostgresRepository{companies: companies, subscriptions: subscriptions}
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Company, error) {
	rec, err := r.companies.Get(ctx, id)
	if err != nil {
		return service.Company{}, mapErr(err, "company %s", id)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	rec, err := r.companies.Create(ctx, persistence.CompanyRecord{
		ID:       c.ID,
		Name:     c.Name,
		Slug:     c.Slug,
		IsActive: c.IsActive,
	})
	if errors.Is(err, persistence.ErrConflict) {
		return service.Company{}, fmt.Errorf("%w: %s", service.ErrConflictSlug, c.Slug)
	}
	if err != nil {
		return service.Company{}, err
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) (service.Company, error) {
	rec, err := r.companies.UpdateName(ctx, id, name)
	if err != nil {
		return service.Company{}, mapErr(err, "company %s", id)
	}
	return toServiceCompany(rec), nil
}

func (r *PostgresRepository) GetMember(ctx context.Context, companyID uuid.UUID, userID string) (service.Member, error) {
	rec, err := r.companies.GetMember(ctx, companyID, userID)
	if err != nil {
		return service.Member{}, mapErr(err, "member %s", userID)
	}
	return toServiceMember(rec), nil
}

func (r *PostgresRepository) UpsertMember(ctx context.Context, m service.Member) (service.Member, error) {
	rec, err := r.companies.UpsertMember(ctx, persistence.MemberRecord{
		CompanyID: m.CompanyID,
		UserID:    m.UserID,
		Email:     m.Email,
		Role:      string(m.Role),
		IsActive:  m.IsActive,
	})
	if err != nil {
		return service.Member{}, mapErr(err, "company %s", m.CompanyID)
	}
	return toServiceMember(rec), nil
}

func (r *PostgresRepository) GetSubscriptionState(ctx context.Context, companyID uuid.UUID) (service.SubscriptionState, error) {
	rec, err := r.subscriptions.GetByCompany(ctx, companyID)
	if err != nil {
		return service.SubscriptionState{}, mapErr(err, "subscription of company %s", companyID)
	}
	status, err := lifecycle.ParseSubscriptionStatus(rec.Status)
	if err != nil {
		return service.SubscriptionState{}, err
	}
	return service.SubscriptionState{Status: status, TrialEndsAt: rec.TrialEndsAt}, nil
}

func toServiceCompany(rec persistence.CompanyRecord) service.Company {
	return service.Company{
		ID:        rec.ID,
		Name:      rec.Name,
		Slug:      rec.Slug,
		IsActive:  rec.IsActive,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toServiceMember(rec persistence.MemberRecord) service.Member {
	return service.Member{
		CompanyID: rec.CompanyID,
		UserID:    rec.UserID,
		Email:     rec.Email,
		Role:      service.Role(rec.Role),
		IsActive:  rec.IsActive,
	}
}

func mapErr(err error, format string, args ...any) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: "+format, append([]any{service.ErrNotFound}, args...)...)
	case errors.Is(err, persistence.ErrCompanyFrozen):
		return fmt.Errorf("%w: "+format, append([]any{service.ErrFrozen}, args...)...)
	}
	return err
}
