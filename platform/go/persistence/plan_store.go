package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PlanRecord mirrors a plans row.
type PlanRecord struct {
	ID               uuid.UUID       `db:"id"`
	Name             string          `db:"name"`
	PriceMonthly     decimal.Decimal `db:"price_monthly"`
	PriceYearly      decimal.Decimal `db:"price_yearly"`
	IsActive         bool            `db:"is_active"`
	TrialEnabled     bool            `db:"trial_enabled"`
	TrialDefaultDays int             `db:"trial_default_days"`
	CreatedAt        time.Time       `db:"created_at"`
}

// PlanStore provides access to the plan catalog.
type PlanStore struct {
	pool *pgxpool.Pool
}

func NewPlanStore(pool *pgxpool.Pool) (*PlanStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PlanStore{pool: pool}, nil
}

// Prices travel as text so NUMERIC values keep their exact scale.
const planColumns = `id, name, price_monthly::text, price_yearly::text, is_active, trial_enabled, trial_default_days, created_at`

// Get fetches a plan by id, active or not.
func (s *PlanStore) Get(ctx context.Context, id uuid.UUID) (PlanRecord, error) {
	return scanPlanRecord(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

// GetByName fetches a plan by its unique name.
func (s *PlanStore) GetByName(ctx context.Context, name string) (PlanRecord, error) {
	return scanPlanRecord(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE name = $1`, name))
}

// List returns the catalog ordered by monthly price.
func (s *PlanStore) List(ctx context.Context) ([]PlanRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY price_monthly, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlanRecord
	for rows.Next() {
		rec, err := scanPlanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Upsert inserts a plan or updates the plan with the same name. The id of an existing plan is kept.
func (s *PlanStore) Upsert(ctx context.Context, rec PlanRecord) (PlanRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
        INSERT INTO plans (id, name, price_monthly, price_yearly, is_active, trial_enabled, trial_default_days)
        VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
        ON CONFLICT (name) DO UPDATE
        SET price_monthly = EXCLUDED.price_monthly,
            price_yearly = EXCLUDED.price_yearly,
            is_active = EXCLUDED.is_active,
            trial_enabled = EXCLUDED.trial_enabled,
            trial_default_days = EXCLUDED.trial_default_days
        RETURNING `+planColumns,
		rec.ID, rec.Name, rec.PriceMonthly.String(), rec.PriceYearly.String(),
		rec.IsActive, rec.TrialEnabled, rec.TrialDefaultDays,
	)
	return scanPlanRecord(row)
}

func scanPlanRecord(row pgx.Row) (PlanRecord, error) {
	var (
		rec            PlanRecord
		monthly, yearly string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &monthly, &yearly, &rec.IsActive, &rec.TrialEnabled, &rec.TrialDefaultDays, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlanRecord{}, ErrNotFound
		}
		return PlanRecord{}, err
	}

	var err error
	if rec.PriceMonthly, err = decimal.NewFromString(monthly); err != nil {
		return PlanRecord{}, fmt.Errorf("parse monthly price: %w", err)
	}
	if rec.PriceYearly, err = decimal.NewFromString(yearly); err != nil {
		return PlanRecord{}, fmt.Errorf("parse yearly price: %w", err)
	}
	return rec, nil
}
