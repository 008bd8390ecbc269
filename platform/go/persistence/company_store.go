package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CompanyRecord mirrors a companies row.
type CompanyRecord struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MemberRecord mirrors a company_members row.
type MemberRecord struct {
	CompanyID uuid.UUID `db:"company_id"`
	UserID    string    `db:"user_id"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// CompanyStore provides access to companies and their members.
type CompanyStore struct {
	pool *pgxpool.Pool
}

// NewCompanyStore creates a store; assumes BootstrapPlatformSchema already ran.
func NewCompanyStore(pool *pgxpool.Pool) (*CompanyStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CompanyStore{pool: pool}, nil
}

const companyColumns = `id, name, slug, is_active, created_at, updated_at`

// Create inserts a company. A taken slug yields ErrConflict.
func (s *CompanyStore) Create(ctx context.Context, rec CompanyRecord) (CompanyRecord, error) {
	if rec.ID == uuid.Nil {
		return CompanyRecord{}, errors.New("company id is required")
	}

	row := s.pool.QueryRow(ctx, `
        INSERT INTO companies (id, name, slug, is_active)
        VALUES ($1, $2, $3, $4)
        RETURNING `+companyColumns,
		rec.ID, rec.Name, rec.Slug, rec.IsActive,
	)
	out, err := scanCompanyRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return CompanyRecord{}, fmt.Errorf("%w: slug %q", ErrConflict, rec.Slug)
		}
		return CompanyRecord{}, err
	}
	return out, nil
}

// Get fetches a company by id.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (CompanyRecord, error) {
	return scanCompanyRecord(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

// UpdateName renames a company. Frozen companies are rejected with ErrCompanyFrozen.
func (s *CompanyStore) UpdateName(ctx context.Context, id uuid.UUID, name string) (CompanyRecord, error) {
	rec, err := scanCompanyRecord(s.pool.QueryRow(ctx, `
        UPDATE companies SET name = $2, updated_at = now()
        WHERE id = $1 AND company_is_writable(id)
        RETURNING `+companyColumns, id, name))
	if errors.Is(err, ErrNotFound) {
		return CompanyRecord{}, s.unwritable(ctx, id)
	}
	return rec, err
}

// unwritable explains why a write guarded by company_is_writable matched no row.
func (s *CompanyStore) unwritable(ctx context.Context, id uuid.UUID) error {
	active, err := s.IsActive(ctx, id)
	switch {
	case err != nil:
		return err
	case !active:
		return ErrCompanyFrozen
	default:
		return ErrNotFound
	}
}

// IsActive reports the freeze flag of a company.
func (s *CompanyStore) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	var active bool
	if err := s.pool.QueryRow(ctx, `SELECT is_active FROM companies WHERE id = $1`, id).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return active, nil
}

// SetActive flips is_active for the companies that are not already in the requested state and
// returns the ids that changed. When pauseSubscriptions is set, the subscriptions of the changed
// companies are paused in the same transaction.
func (s *CompanyStore) SetActive(ctx context.Context, ids []uuid.UUID, active, pauseSubscriptions bool) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
        UPDATE companies SET is_active = $2, updated_at = now()
        WHERE id = ANY($1) AND is_active <> $2
        RETURNING id`, ids, active)
	if err != nil {
		return nil, fmt.Errorf("update companies: %w", err)
	}
	changed, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect changed companies: %w", err)
	}

	if pauseSubscriptions && len(changed) > 0 {
		if _, err := tx.Exec(ctx, `
            UPDATE company_subscriptions
            SET status = 'paused', trial_ends_at = NULL, updated_at = now()
            WHERE company_id = ANY($1)`, changed); err != nil {
			return nil, fmt.Errorf("pause subscriptions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return changed, nil
}

// UpsertMember inserts or updates a membership. Frozen companies are rejected with ErrCompanyFrozen.
func (s *CompanyStore) UpsertMember(ctx context.Context, rec MemberRecord) (MemberRecord, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO company_members (company_id, user_id, email, role, is_active)
        SELECT $1::uuid, $2::text, $3::text, $4::text, $5::boolean
        WHERE company_is_writable($1)
        ON CONFLICT (company_id, user_id) DO UPDATE
        SET email = EXCLUDED.email, role = EXCLUDED.role, is_active = EXCLUDED.is_active
        RETURNING company_id, user_id, email, role, is_active, created_at`,
		rec.CompanyID, rec.UserID, strings.ToLower(rec.Email), rec.Role, rec.IsActive,
	)
	member, err := scanMemberRecord(row)
	if errors.Is(err, ErrNotFound) {
		return MemberRecord{}, s.unwritable(ctx, rec.CompanyID)
	}
	return member, err
}

// GetMember fetches a membership regardless of its active flag.
func (s *CompanyStore) GetMember(ctx context.Context, companyID uuid.UUID, userID string) (MemberRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT company_id, user_id, email, role, is_active, created_at
        FROM company_members WHERE company_id = $1 AND user_id = $2`, companyID, userID)
	return scanMemberRecord(row)
}

// MemberEmails returns the emails of the active members holding one of the roles.
func (s *CompanyStore) MemberEmails(ctx context.Context, companyID uuid.UUID, roles []string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT email FROM company_members
        WHERE company_id = $1 AND is_active AND role = ANY($2)
        ORDER BY created_at`, companyID, roles)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanCompanyRecord(row pgx.Row) (CompanyRecord, error) {
	var rec CompanyRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Slug, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyRecord{}, ErrNotFound
		}
		return CompanyRecord{}, err
	}
	return rec, nil
}

func scanMemberRecord(row pgx.Row) (MemberRecord, error) {
	var rec MemberRecord
	if err := row.Scan(&rec.CompanyID, &rec.UserID, &rec.Email, &rec.Role, &rec.IsActive, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberRecord{}, ErrNotFound
		}
		return MemberRecord{}, err
	}
	return rec, nil
}
