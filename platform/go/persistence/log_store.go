package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
)

// LogStore appends to the audit, security and billing logs and owns the trial notice ledger.
// The log tables have no update or delete path.
type LogStore struct {
	pool *pgxpool.Pool
}

func NewLogStore(pool *pgxpool.Pool) (*LogStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &LogStore{pool: pool}, nil
}

// WriteEvent implements eventlog.Writer.
func (s *LogStore) WriteEvent(ctx context.Context, e eventlog.Event) error {
	oldValues, err := jsonOrNil(e.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := jsonOrNil(e.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}
	details, err := jsonOrNil(e.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}

	requestID := nilIfEmpty(e.RequestID)

	switch e.Family {
	case eventlog.FamilyAudit:
		_, err = s.pool.Exec(ctx, `
            INSERT INTO audit_logs (id, company_id, actor_id, actor_kind, action, severity, old_values, new_values, details, request_id, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			e.ID, e.CompanyID, e.ActorID, e.ActorKind, e.Type, string(e.Severity), oldValues, newValues, details, requestID, e.OccurredAt)
	case eventlog.FamilySecurity:
		_, err = s.pool.Exec(ctx, `
            INSERT INTO security_events (id, company_id, actor_id, actor_kind, event_type, severity, details, request_id, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			e.ID, e.CompanyID, e.ActorID, e.ActorKind, e.Type, string(e.Severity), details, requestID, e.OccurredAt)
	case eventlog.FamilyBilling:
		_, err = s.pool.Exec(ctx, `
            INSERT INTO billing_logs (id, company_id, actor_id, actor_kind, event_type, old_values, new_values, details, request_id, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, e.CompanyID, e.ActorID, e.ActorKind, e.Type, oldValues, newValues, details, requestID, e.OccurredAt)
	default:
		return fmt.Errorf("%w: unknown family %q", eventlog.ErrInvalidEvent, e.Family)
	}
	if err != nil {
		return fmt.Errorf("insert %s event: %w", e.Family, err)
	}
	return nil
}

// ClaimNotification records that a notice of the given kind goes out to the company on day.
// It returns false when the notice was already claimed for that day.
func (s *LogStore) ClaimNotification(ctx context.Context, companyID uuid.UUID, kind string, day time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        INSERT INTO trial_email_logs (company_id, notification_type, sent_on)
        VALUES ($1, $2, $3::date)
        ON CONFLICT DO NOTHING`, companyID, kind, day.UTC().Format(time.DateOnly))
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseNotification removes a claim so a failed send can be retried on the next run.
func (s *LogStore) ReleaseNotification(ctx context.Context, companyID uuid.UUID, kind string, day time.Time) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM trial_email_logs
        WHERE company_id = $1 AND notification_type = $2 AND sent_on = $3::date`,
		companyID, kind, day.UTC().Format(time.DateOnly))
	if err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}

func jsonOrNil(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
