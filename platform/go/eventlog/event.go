// Package eventlog records append-only audit, security and billing events without putting
// the log write on the critical path of the command that produced them.
package eventlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Family selects the log table an event is appended to.
type Family string

const (
	FamilyAudit    Family = "audit"
	FamilySecurity Family = "security"
	FamilyBilling  Family = "billing"
)

// Severity levels. Audit entries use info/warn/error, security events use low..critical,
// billing entries carry no severity.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"

	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Audit actions.
const (
	AuditPlanChanged     = "plan_changed"
	AuditCompanyFrozen   = "company_frozen"
	AuditCompanyUnfrozen = "company_unfrozen"
	AuditCompanyUpdated  = "company_updated"
)

// Security event types.
const (
	SecurityCompanyFrozen   = "company_frozen"
	SecurityCompanyUnfrozen = "company_unfrozen"
)

// Billing event types.
const (
	BillingSubscriptionCreated    = "subscription_created"
	BillingSubscriptionUpgraded   = "subscription_upgraded"
	BillingSubscriptionDowngraded = "subscription_downgraded"
	BillingCompanyFrozen          = "company_frozen"
	BillingCompanyUnfrozen        = "company_unfrozen"
	BillingTrialExpired           = "trial_expired"
)

var (
	auditTypes    = set(AuditPlanChanged, AuditCompanyFrozen, AuditCompanyUnfrozen, AuditCompanyUpdated)
	securityTypes = set(SecurityCompanyFrozen, SecurityCompanyUnfrozen)
	billingTypes  = set(BillingSubscriptionCreated, BillingSubscriptionUpgraded, BillingSubscriptionDowngraded,
		BillingCompanyFrozen, BillingCompanyUnfrozen, BillingTrialExpired)

	auditSeverities    = set(string(SeverityInfo), string(SeverityWarn), string(SeverityError))
	securitySeverities = set(string(SeverityLow), string(SeverityMedium), string(SeverityHigh), string(SeverityCritical))
)

// ErrInvalidEvent is returned for events outside their family's closed vocabulary.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one append-only log entry. Type holds the audit action or the event type of the family.
type Event struct {
	ID         uuid.UUID
	Family     Family
	CompanyID  *uuid.UUID
	ActorID    *string
	ActorKind  string
	Type       string
	Severity   Severity
	OldValues  map[string]any
	NewValues  map[string]any
	Details    map[string]any
	RequestID  string
	OccurredAt time.Time
}

// Validate checks the event type and severity against the closed enums of its family.
func (e Event) Validate() error {
	var types, severities map[string]struct{}
	switch e.Family {
	case FamilyAudit:
		types, severities = auditTypes, auditSeverities
	case FamilySecurity:
		types, severities = securityTypes, securitySeverities
	case FamilyBilling:
		types = billingTypes
	default:
		return fmt.Errorf("%w: unknown family %q", ErrInvalidEvent, e.Family)
	}

	if _, ok := types[e.Type]; !ok {
		return fmt.Errorf("%w: %s type %q", ErrInvalidEvent, e.Family, e.Type)
	}
	if severities == nil {
		if e.Severity != "" {
			return fmt.Errorf("%w: %s events carry no severity", ErrInvalidEvent, e.Family)
		}
		return nil
	}
	if _, ok := severities[string(e.Severity)]; !ok {
		return fmt.Errorf("%w: %s severity %q", ErrInvalidEvent, e.Family, e.Severity)
	}
	return nil
}

// Audit builds an audit entry.
func Audit(companyID uuid.UUID, action string, severity Severity, oldValues, newValues, details map[string]any) Event {
	return Event{Family: FamilyAudit, CompanyID: &companyID, Type: action, Severity: severity,
		OldValues: oldValues, NewValues: newValues, Details: details}
}

// Security builds a security event.
func Security(companyID uuid.UUID, eventType string, severity Severity, details map[string]any) Event {
	return Event{Family: FamilySecurity, CompanyID: &companyID, Type: eventType, Severity: severity, Details: details}
}

// Billing builds a billing log entry.
func Billing(companyID uuid.UUID, eventType string, oldValues, newValues, details map[string]any) Event {
	return Event{Family: FamilyBilling, CompanyID: &companyID, Type: eventType,
		OldValues: oldValues, NewValues: newValues, Details: details}
}

func set(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
