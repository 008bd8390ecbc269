package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
)

// Stores groups the persistence stores backing the billing repository.
type Stores struct {
	Companies     *persistence.CompanyStore
	Plans         *persistence.PlanStore
	Subscriptions *persistence.SubscriptionStore
	Logs          *persistence.LogStore
}

// OpenStores builds every billing store on pool.
func OpenStores(pool *pgxpool.Pool) (Stores, error) {
	companies, err := persistence.NewCompanyStore(pool)
	if err != nil {
		return Stores{}, fmt.Errorf("company store: %w", err)
	}
	plans, err := persistence.NewPlanStore(pool)
	if err != nil {
		return Stores{}, fmt.Errorf("plan store: %w", err)
	}
	subscriptions, err := persistence.NewSubscriptionStore(pool)
	if err != nil {
		return Stores{}, fmt.Errorf("subscription store: %w", err)
	}
	logs, err := persistence.NewLogStore(pool)
	if err != nil {
		return Stores{}, fmt.Errorf("log store: %w", err)
	}
	return Stores{Companies: companies, Plans: plans, Subscriptions: subscriptions, Logs: logs}, nil
}

// PostgresRepository implements service.Repository on the shared persistence layer.
type PostgresRepository struct {
	companies     *persistence.CompanyStore
	plans         *persistence.PlanStore
	subscriptions *persistence.SubscriptionStore
	logs          *persistence.LogStore
}

// NewPostgresRepository constructs a repository backed by the billing stores.
func NewPostgresRepository(stores Stores) *PostgresRepository {
	if stores.Companies == nil || stores.Plans == nil || stores.Subscriptions == nil || stores.Logs == nil {
		panic("billing stores are required")
	}
	return &PostgresRepository{
		companies:     stores.Companies,
		plans:         stores.Plans,
		subscriptions: stores.Subscriptions,
		logs:          stores.Logs,
	}
}

func (r *PostgresRepository) GetCompany(ctx context.Context, id uuid.UUID) (service.Company, error) {
	rec, err := r.companies.Get(ctx, id)
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
	return service.Member{
		CompanyID: rec.CompanyID,
		UserID:    rec.UserID,
		Email:     rec.Email,
		Role:      service.Role(rec.Role),
		IsActive:  rec.IsActive,
	}, nil
}

func (r *PostgresRepository) MemberEmails(ctx context.Context, companyID uuid.UUID, roles []service.Role) ([]string, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return r.companies.MemberEmails(ctx, companyID, names)
}

func (r *PostgresRepository) GetPlan(ctx context.Context, id uuid.UUID) (lifecycle.Plan, error) {
	rec, err := r.plans.Get(ctx, id)
	if err != nil {
		return lifecycle.Plan{}, mapErr(err, "plan %s", id)
	}
	return ToLifecyclePlan(rec), nil
}

func (r *PostgresRepository) GetSubscription(ctx context.Context, companyID uuid.UUID) (service.Subscription, error) {
	rec, err := r.subscriptions.GetByCompany(ctx, companyID)
	if err != nil {
		return service.Subscription{}, mapErr(err, "subscription of company %s", companyID)
	}
	return toServiceSubscription(rec)
}

func (r *PostgresRepository) SaveSubscription(ctx context.Context, sub service.Subscription) (service.Subscription, error) {
	rec, err := r.subscriptions.Upsert(ctx, persistence.SubscriptionRecord{
		ID:                   sub.ID,
		CompanyID:            sub.CompanyID,
		PlanID:               sub.PlanID,
		Status:               string(sub.Status),
		BillingInterval:      string(sub.Interval),
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		TrialEndsAt:          sub.TrialEndsAt,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
	})
	if err != nil {
		return service.Subscription{}, err
	}
	return toServiceSubscription(rec)
}

func (r *PostgresRepository) SetCompaniesActive(ctx context.Context, ids []uuid.UUID, active, pauseSubscriptions bool) ([]uuid.UUID, error) {
	return r.companies.SetActive(ctx, ids, active, pauseSubscriptions)
}

func (r *PostgresRepository) ListSnapshots(ctx context.Context) ([]service.CompanySnapshot, error) {
	rows, err := r.subscriptions.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return toSnapshots(rows)
}

func (r *PostgresRepository) ExpireTrials(ctx context.Context, now time.Time) ([]service.ExpiredTrial, error) {
	rows, err := r.subscriptions.ExpireTrials(ctx, now)
	if err != nil {
		return nil, err
	}
	return toExpiredTrials(rows), nil
}

func toExpiredTrials(rows []persistence.ExpiredTrialRecord) []service.ExpiredTrial {
	out := make([]service.ExpiredTrial, len(rows))
	for i, rec := range rows {
		out[i] = service.ExpiredTrial{CompanyID: rec.CompanyID, CompanyName: rec.CompanyName, TrialEnded: rec.TrialEnded}
	}
	return out
}

func (r *PostgresRepository) ListUnnotifiedExpiredTrials(ctx context.Context, kind string) ([]service.ExpiredTrial, error) {
	rows, err := r.subscriptions.ListUnnotifiedExpiredTrials(ctx, kind)
	if err != nil {
		return nil, err
	}
	return toExpiredTrials(rows), nil
}

func (r *PostgresRepository) ListTrialing(ctx context.Context) ([]service.CompanySnapshot, error) {
	rows, err := r.subscriptions.ListTrialing(ctx)
	if err != nil {
		return nil, err
	}
	return toSnapshots(rows)
}

func (r *PostgresRepository) ClaimNotification(ctx context.Context, companyID uuid.UUID, kind string, day time.Time) (bool, error) {
	return r.logs.ClaimNotification(ctx, companyID, kind, day)
}

func (r *PostgresRepository) ReleaseNotification(ctx context.Context, companyID uuid.UUID, kind string, day time.Time) error {
	return r.logs.ReleaseNotification(ctx, companyID, kind, day)
}

// ToLifecyclePlan converts a catalog row into the lifecycle plan model.
func ToLifecyclePlan(rec persistence.PlanRecord) lifecycle.Plan {
	return lifecycle.Plan{
		ID:               rec.ID,
		Name:             rec.Name,
		PriceMonthly:     rec.PriceMonthly,
		PriceYearly:      rec.PriceYearly,
		IsActive:         rec.IsActive,
		TrialEnabled:     rec.TrialEnabled,
		TrialDefaultDays: rec.TrialDefaultDays,
	}
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

func toServiceSubscription(rec persistence.SubscriptionRecord) (service.Subscription, error) {
	status, err := lifecycle.ParseSubscriptionStatus(rec.Status)
	if err != nil {
		return service.Subscription{}, err
	}
	interval, err := lifecycle.ParseBillingInterval(rec.BillingInterval)
	if err != nil {
		return service.Subscription{}, err
	}
	return service.Subscription{
		ID:                   rec.ID,
		CompanyID:            rec.CompanyID,
		PlanID:               rec.PlanID,
		Status:               status,
		Interval:             interval,
		CurrentPeriodStart:   rec.CurrentPeriodStart,
		CurrentPeriodEnd:     rec.CurrentPeriodEnd,
		TrialEndsAt:          rec.TrialEndsAt,
		StripeCustomerID:     rec.StripeCustomerID,
		StripeSubscriptionID: rec.StripeSubscriptionID,
		UpdatedAt:            rec.UpdatedAt,
	}, nil
}

func toSnapshots(rows []persistence.SnapshotRecord) ([]service.CompanySnapshot, error) {
	out := make([]service.CompanySnapshot, 0, len(rows))
	for _, rec := range rows {
		status, err := lifecycle.ParseSubscriptionStatus(rec.Status)
		if err != nil {
			return nil, fmt.Errorf("company %s: %w", rec.CompanyID, err)
		}
		out = append(out, service.CompanySnapshot{
			Snapshot: lifecycle.Snapshot{
				CompanyID:        rec.CompanyID,
				CompanyActive:    rec.CompanyActive,
				Status:           status,
				CurrentPeriodEnd: rec.CurrentPeriodEnd,
				TrialEndsAt:      rec.TrialEndsAt,
			},
			CompanyName: rec.CompanyName,
		})
	}
	return out, nil
}

func mapErr(err error, format string, args ...any) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{service.ErrNotFound}, args...)...)
	}
	return err
}
