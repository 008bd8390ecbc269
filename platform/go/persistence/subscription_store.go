package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRecord mirrors a company_subscriptions row.
type SubscriptionRecord struct {
	ID                   uuid.UUID  `db:"id"`
	CompanyID            uuid.UUID  `db:"company_id"`
	PlanID               uuid.UUID  `db:"plan_id"`
	Status               string     `db:"status"`
	BillingInterval      string     `db:"billing_interval"`
	CurrentPeriodStart   time.Time  `db:"current_period_start"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end"`
	TrialEndsAt          *time.Time `db:"trial_ends_at"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// SnapshotRecord joins a subscription with the freeze flag of its company.
type SnapshotRecord struct {
	CompanyID        uuid.UUID
	CompanyName      string
	CompanyActive    bool
	Status           string
	CurrentPeriodEnd *time.Time
	TrialEndsAt      *time.Time
}

// ExpiredTrialRecord is a trial moved to trial_expired by ExpireTrials.
type ExpiredTrialRecord struct {
	CompanyID   uuid.UUID
	CompanyName string
	TrialEnded  time.Time
}

// SubscriptionStore provides access to company subscriptions.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) (*SubscriptionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SubscriptionStore{pool: pool}, nil
}

const subscriptionColumns = `id, company_id, plan_id, status, billing_interval, current_period_start,
        current_period_end, trial_ends_at, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

// GetByCompany fetches the subscription of a company.
func (s *SubscriptionStore) GetByCompany(ctx context.Context, companyID uuid.UUID) (SubscriptionRecord, error) {
	return scanSubscriptionRecord(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM company_subscriptions WHERE company_id = $1`, companyID))
}

// Upsert replaces the subscription of the company in one statement. The row id of an existing
// subscription is kept.
func (s *SubscriptionStore) Upsert(ctx context.Context, rec SubscriptionRecord) (SubscriptionRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
        INSERT INTO company_subscriptions (
            id, company_id, plan_id, status, billing_interval, current_period_start,
            current_period_end, trial_ends_at, stripe_customer_id, stripe_subscription_id
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (company_id) DO UPDATE
        SET plan_id = EXCLUDED.plan_id,
            status = EXCLUDED.status,
            billing_interval = EXCLUDED.billing_interval,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            trial_ends_at = EXCLUDED.trial_ends_at,
            stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, company_subscriptions.stripe_customer_id),
            stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, company_subscriptions.stripe_subscription_id),
            updated_at = now()
        RETURNING `+subscriptionColumns,
		rec.ID, rec.CompanyID, rec.PlanID, rec.Status, rec.BillingInterval, rec.CurrentPeriodStart,
		rec.CurrentPeriodEnd, rec.TrialEndsAt, rec.StripeCustomerID, rec.StripeSubscriptionID,
	)
	return scanSubscriptionRecord(row)
}

// ListSnapshots returns every subscription joined with its company's freeze flag.
func (s *SubscriptionStore) ListSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT c.id, c.name, c.is_active, s.status, s.current_period_end, s.trial_ends_at
        FROM company_subscriptions s
        JOIN companies c ON c.id = s.company_id
        ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		if err := rows.Scan(&rec.CompanyID, &rec.CompanyName, &rec.CompanyActive, &rec.Status, &rec.CurrentPeriodEnd, &rec.TrialEndsAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExpireTrials moves every trial that ended before now to trial_expired. The trial end is kept as
// the period end.
func (s *SubscriptionStore) ExpireTrials(ctx context.Context, now time.Time) ([]ExpiredTrialRecord, error) {
	rows, err := s.pool.Query(ctx, `
        WITH expired AS (
            UPDATE company_subscriptions
            SET status = 'trial_expired',
                current_period_end = trial_ends_at,
                trial_ends_at = NULL,
                updated_at = now()
            WHERE status = 'trialing' AND trial_ends_at < $1
            RETURNING company_id, current_period_end
        )
        SELECT e.company_id, c.name, e.current_period_end
        FROM expired e
        JOIN companies c ON c.id = e.company_id
        ORDER BY e.company_id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiredTrialRecord
	for rows.Next() {
		var rec ExpiredTrialRecord
		if err := rows.Scan(&rec.CompanyID, &rec.CompanyName, &rec.TrialEnded); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListUnnotifiedExpiredTrials returns expired trials that never had a notice of kind claimed.
func (s *SubscriptionStore) ListUnnotifiedExpiredTrials(ctx context.Context, kind string) ([]ExpiredTrialRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT s.company_id, c.name, COALESCE(s.current_period_end, s.updated_at)
        FROM company_subscriptions s
        JOIN companies c ON c.id = s.company_id
        WHERE s.status = 'trial_expired'
          AND NOT EXISTS (
              SELECT 1 FROM trial_email_logs l
              WHERE l.company_id = s.company_id AND l.notification_type = $1
          )
        ORDER BY s.company_id`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiredTrialRecord
	for rows.Next() {
		var rec ExpiredTrialRecord
		if err := rows.Scan(&rec.CompanyID, &rec.CompanyName, &rec.TrialEnded); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListTrialing returns the running trials of active companies.
func (s *SubscriptionStore) ListTrialing(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT c.id, c.name, c.is_active, s.status, s.current_period_end, s.trial_ends_at
        FROM company_subscriptions s
        JOIN companies c ON c.id = s.company_id
        WHERE s.status = 'trialing' AND s.trial_ends_at IS NOT NULL AND c.is_active
        ORDER BY s.trial_ends_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		if err := rows.Scan(&rec.CompanyID, &rec.CompanyName, &rec.CompanyActive, &rec.Status, &rec.CurrentPeriodEnd, &rec.TrialEndsAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSubscriptionRecord(row pgx.Row) (SubscriptionRecord, error) {
	var rec SubscriptionRecord
	if err := row.Scan(&rec.ID, &rec.CompanyID, &rec.PlanID, &rec.Status, &rec.BillingInterval, &rec.CurrentPeriodStart,
		&rec.CurrentPeriodEnd, &rec.TrialEndsAt, &rec.StripeCustomerID, &rec.StripeSubscriptionID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionRecord{}, ErrNotFound
		}
		return SubscriptionRecord{}, err
	}
	return rec, nil
}
