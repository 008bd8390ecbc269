package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ErrNoRecipients is returned when a message has nobody to send to.
var ErrNoRecipients = errors.New("notification has no recipients")

type emailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html>
<head><meta http-equiv="Content-Type" content="text/html; charset=UTF-8" /></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">
%s
</body>
</html>`

var bodies = map[Kind]struct{ subject, body string }{
	KindTrialExpired: {
		subject: "Your Palmyra Payroll trial has ended",
		body:    `<p>The trial for <strong>{{.company_name}}</strong> has ended.</p><p>Choose a plan to keep running payroll and editing employee records.</p>`,
	},
	KindCompanyFrozen: {
		subject: "Your company account has been frozen",
		body:    `<p><strong>{{.company_name}}</strong> is now read-only.</p>{{with .reason}}<p>Reason: {{.}}</p>{{end}}<p>Update your billing details to restore access.</p>`,
	},
	KindCompanyUnfrozen: {
		subject: "Your company account is active again",
		body:    `<p><strong>{{.company_name}}</strong> has been restored and changes are enabled again.</p>`,
	},
}

const warningBody = `<p>The trial for <strong>{{.company_name}}</strong> ends in {{.days_left}} day(s), on {{.trial_ends_at}}.</p><p>Choose a plan before then to avoid interruptions.</p>`

// EmailNotifier sends templated HTML notices through Resend.
type EmailNotifier struct {
	client    *resend.Client
	from      string
	logger    *zap.Logger
	templates map[Kind]emailTemplate
	warning   *template.Template
}

// NewEmailNotifier parses the templates and returns a notifier sending from the given address.
func NewEmailNotifier(apiKey, from string, logger *zap.Logger) (*EmailNotifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("resend api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("from address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	templates := make(map[Kind]emailTemplate, len(bodies))
	for kind, def := range bodies {
		tmpl, err := template.New(string(kind)).Parse(fmt.Sprintf(layout, def.body))
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		templates[kind] = emailTemplate{subject: def.subject, body: tmpl}
	}
	warning, err := template.New("trial_warning").Parse(fmt.Sprintf(layout, warningBody))
	if err != nil {
		return nil, fmt.Errorf("parse trial warning template: %w", err)
	}

	return &EmailNotifier{
		client:    resend.NewClient(apiKey),
		from:      from,
		logger:    logger,
		templates: templates,
		warning:   warning,
	}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return ErrNoRecipients
	}

	subject, html, err := n.render(msg)
	if err != nil {
		return err
	}

	sent, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      msg.Recipients,
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send %s email: %w", msg.Kind, err)
	}

	n.logger.Info("email sent",
		zap.String("message_id", sent.Id),
		zap.String("kind", string(msg.Kind)),
		zap.Stringer("company_id", msg.CompanyID),
	)
	return nil
}

func (n *EmailNotifier) render(msg Message) (string, string, error) {
	tmpl, subject := n.lookup(msg)
	if tmpl == nil {
		return "", "", fmt.Errorf("no email template for %q", msg.Kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, msg.Data); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", msg.Kind, err)
	}
	return subject, buf.String(), nil
}

func (n *EmailNotifier) lookup(msg Message) (*template.Template, string) {
	if t, ok := n.templates[msg.Kind]; ok {
		return t.body, t.subject
	}
	if strings.HasPrefix(string(msg.Kind), "trial_warning_") {
		days, _ := msg.Data["days_left"].(int)
		return n.warning, fmt.Sprintf("Your Palmyra Payroll trial ends in %d day(s)", days)
	}
	return nil, ""
}
