// Package wiring assembles the billing and company services shared by the API server and the admin CLI.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	billingrepo "github.com/zenGate-Global/palmyra-payroll/domains/billing/be/repo"
	billingservice "github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
	companiesrepo "github.com/zenGate-Global/palmyra-payroll/domains/companies/be/repo"
	companiesservice "github.com/zenGate-Global/palmyra-payroll/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/gcp"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/notify"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/storage"
)

// Config holds the lifecycle settings read from the environment by both binaries.
type Config struct {
	EnvKey            string        `env:"ENV_KEY,required"`
	GracePeriodDays   int           `env:"GRACE_PERIOD_DAYS" envDefault:"7"`
	TrialWarningDays  []int         `env:"TRIAL_WARNING_DAYS" envDefault:"7,3,1"`
	NotifyConcurrency int           `env:"NOTIFY_CONCURRENCY" envDefault:"4"`
	EventBufferSize   int           `env:"EVENT_BUFFER_SIZE" envDefault:"1024"`
	EventWriteTimeout time.Duration `env:"EVENT_WRITE_TIMEOUT" envDefault:"5s"`
	EmailProvider     string        `env:"EMAIL_PROVIDER" envDefault:"log"` // log | resend
	ResendAPIKey      string        `env:"RESEND_API_KEY"`
	EmailFrom         string        `env:"EMAIL_FROM"`
	ReportBackend     string        `env:"REPORT_BACKEND" envDefault:"none"` // none | gcs | local
	ReportBucket      string        `env:"REPORT_BUCKET"`                    // required when REPORT_BACKEND=gcs
	ReportLocalDir    string        `env:"REPORT_LOCAL_DIR" envDefault:"./.data/reports"`
	GCPProjectID      string        `env:"GCLOUD_PROJECT"`
	GCPCredentials    string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// Checker reports whether an external dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// ReportArchive is a billing report archive that can be probed for readiness.
type ReportArchive interface {
	billingservice.ReportArchive
	Checker
}

// Services are the assembled domain services and the resources they own.
type Services struct {
	Billing   billingservice.Service
	Companies companiesservice.Service
	Stores    billingrepo.Stores
	Sink      *eventlog.Sink
	// Archive is nil when REPORT_BACKEND=none.
	Archive ReportArchive

	closers []func() error
}

// Open builds the stores, the event sink, the notifier, the report archive and both services.
// reg may be nil to skip metrics.
func Open(ctx context.Context, pool *pgxpool.Pool, cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	stores, err := billingrepo.OpenStores(pool)
	if err != nil {
		return nil, err
	}
	locker, err := persistence.NewAdvisoryLocker(pool)
	if err != nil {
		return nil, fmt.Errorf("advisory locker: %w", err)
	}

	notifier, err := NewNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Services{Stores: stores}
	archive, closeArchive, err := NewReportArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeArchive != nil {
		s.closers = append(s.closers, closeArchive)
	}
	s.Archive = archive

	s.Sink = eventlog.NewSink(stores.Logs, logger.Named("eventlog"), eventlog.Config{
		BufferSize:   cfg.EventBufferSize,
		WriteTimeout: cfg.EventWriteTimeout,
	})

	var billingMetrics *metrics.BillingMetrics
	if reg != nil {
		billingMetrics = metrics.NewBillingMetrics(reg)
	}

	deps := billingservice.Deps{
		Repo:     billingrepo.NewPostgresRepository(stores),
		Locker:   locker,
		Events:   s.Sink,
		Notifier: notifier,
		Metrics:  billingMetrics,
		Logger:   logger.Named("billing"),
	}
	if archive != nil {
		deps.Reports = archive
	}
	s.Billing = billingservice.New(deps, BillingConfig(cfg))

	s.Companies = companiesservice.New(
		companiesrepo.NewPostgresRepository(stores.Companies, stores.Subscriptions),
		s.Sink,
		logger.Named("companies"),
	)
	return s, nil
}

// Close drains pending log events and releases clients.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if s.Sink != nil {
		if err := s.Sink.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain event sink: %w", err))
		}
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BillingConfig maps the environment settings to the lifecycle tunables.
func BillingConfig(cfg Config) billingservice.Config {
	out := billingservice.DefaultConfig()
	out.GracePeriodDays = cfg.GracePeriodDays
	if len(cfg.TrialWarningDays) > 0 {
		out.TrialWarningDays = cfg.TrialWarningDays
	}
	if cfg.NotifyConcurrency > 0 {
		out.NotifyConcurrency = cfg.NotifyConcurrency
	}
	return out
}

// NewNotifier selects the notice transport.
func NewNotifier(cfg Config, logger *zap.Logger) (notify.Notifier, error) {
	switch strings.ToLower(cfg.EmailProvider) {
	case "", "log":
		return notify.NewLogNotifier(logger.Named("notify")), nil
	case "resend":
		n, err := notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.EmailFrom, logger.Named("notify"))
		if err != nil {
			return nil, fmt.Errorf("email notifier: %w", err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("invalid EMAIL_PROVIDER %q (use log or resend)", cfg.EmailProvider)
	}
}

// NewReportArchive selects where sweep reports are kept. The returned close func may be nil.
func NewReportArchive(ctx context.Context, cfg Config) (ReportArchive, func() error, error) {
	switch strings.ToLower(cfg.ReportBackend) {
	case "", "none":
		return nil, nil, nil
	case "local":
		a, err := storage.NewLocalArchive(cfg.ReportLocalDir, cfg.EnvKey)
		if err != nil {
			return nil, nil, err
		}
		return a, nil, nil
	case "gcs":
		if strings.TrimSpace(cfg.ReportBucket) == "" {
			return nil, nil, errors.New("REPORT_BUCKET is required when REPORT_BACKEND=gcs")
		}
		client, err := gcp.NewStorageClient(ctx, gcp.Credentials{
			ProjectID:       cfg.GCPProjectID,
			CredentialsFile: cfg.GCPCredentials,
		})
		if err != nil {
			return nil, nil, err
		}
		a, err := storage.NewGCSArchive(client, cfg.ReportBucket, cfg.EnvKey)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return a, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid REPORT_BACKEND %q (use none, gcs or local)", cfg.ReportBackend)
	}
}
