// Package notify delivers best-effort lifecycle notices to company owners.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind identifies a notification template. Kinds double as the de-duplication key of the
// trial notice ledger.
type Kind string

const (
	KindTrialExpired    Kind = "trial_expired"
	KindCompanyFrozen   Kind = "company_frozen"
	KindCompanyUnfrozen Kind = "company_unfrozen"
)

// TrialWarning returns the kind for a warning sent daysLeft days before the trial ends.
func TrialWarning(daysLeft int) Kind {
	return Kind(fmt.Sprintf("trial_warning_%dd", daysLeft))
}

// Message is one notice addressed to the recipients of a company.
type Message struct {
	CompanyID  uuid.UUID
	Kind       Kind
	Recipients []string
	Data       map[string]any
}

// Notifier sends a message. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier only logs the notice. It is the default when no email provider is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		panic("notify.NewLogNotifier: logger must not be nil")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.Stringer("company_id", msg.CompanyID),
		zap.String("kind", string(msg.Kind)),
		zap.String("recipients", strings.Join(msg.Recipients, ",")),
	)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Discard drops every message.
var Discard Notifier = NotifierFunc(func(context.Context, Message) error { return nil })
