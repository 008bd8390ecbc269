package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/eventlog"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/notify"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/requesttrace"
)

// SweepOptions tunes a health sweep run.
type SweepOptions struct {
	// DryRun evaluates and reports without changing any company.
	DryRun bool
}

// SweepAction is what the sweep did, or would do, to one company.
type SweepAction string

const (
	SweepNone     SweepAction = "none"
	SweepFreeze   SweepAction = "freeze"
	SweepUnfreeze SweepAction = "unfreeze"
	SweepSkipped  SweepAction = "skipped"
)

// SweepDetail is the per-company line of a sweep report.
type SweepDetail struct {
	CompanyID      uuid.UUID   `json:"company_id"`
	Status         string      `json:"status"`
	DaysPastDue    int         `json:"days_past_due"`
	ShouldFreeze   bool        `json:"should_freeze"`
	ShouldUnfreeze bool        `json:"should_unfreeze"`
	Action         SweepAction `json:"action"`
}

// SweepSummary is the outcome of a health sweep.
type SweepSummary struct {
	RunID     string        `json:"run_id"`
	DryRun    bool          `json:"dry_run"`
	Checked   int           `json:"checked"`
	Frozen    int           `json:"frozen"`
	Unfrozen  int           `json:"unfrozen"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Details   []SweepDetail `json:"details"`
	ReportKey string        `json:"report_key,omitempty"`
}

// TrialSweepSummary is the outcome of a trial sweep.
type TrialSweepSummary struct {
	RunID             string `json:"run_id"`
	TrialsExpired     int    `json:"trials_expired"`
	TrialWarningsSent int    `json:"trial_warnings_sent"`
	CompaniesFrozen   int    `json:"companies_frozen"`
	Errors            int    `json:"errors"`
}

func (s *service) RunHealthSweep(ctx context.Context, opts SweepOptions) (SweepSummary, error) {
	start := time.Now()
	release, err := s.lease(ctx, JobHealthSweep)
	if err != nil {
		s.metrics.SweepCompleted(JobHealthSweep, sweepOutcome(err, opts.DryRun), time.Since(start))
		return SweepSummary{}, err
	}
	defer release()

	runID := ulid.Make().String()
	ctx = systemContext(ctx, runID)

	summary, err := s.healthSweep(ctx, runID, opts)
	s.metrics.SweepCompleted(JobHealthSweep, sweepOutcome(err, opts.DryRun), time.Since(start))
	if err != nil {
		return SweepSummary{}, err
	}

	if s.reports != nil {
		key, err := s.reports.Archive(ctx, JobHealthSweep, runID, summary)
		if err != nil {
			s.logger.Warn("archive sweep report", zap.String("run_id", runID), zap.Error(err))
		} else {
			summary.ReportKey = key
		}
	}

	s.logger.Info("health sweep completed",
		zap.String("run_id", runID),
		zap.Bool("dry_run", summary.DryRun),
		zap.Int("checked", summary.Checked),
		zap.Int("frozen", summary.Frozen),
		zap.Int("unfrozen", summary.Unfrozen),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (s *service) healthSweep(ctx context.Context, runID string, opts SweepOptions) (SweepSummary, error) {
	snapshots, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list subscriptions: %w", err)
	}

	now := s.now().UTC()
	summary := SweepSummary{RunID: runID, DryRun: opts.DryRun, Details: make([]SweepDetail, 0, len(snapshots))}
	daysPastDue := make(map[uuid.UUID]int, len(snapshots))

	for _, snap := range snapshots {
		detail := SweepDetail{CompanyID: snap.CompanyID, Status: string(snap.Status), Action: SweepNone}

		decision, err := lifecycle.Evaluate(snap.Snapshot, now, s.cfg.GracePeriodDays)
		if err != nil {
			summary.Skipped++
			detail.Action = SweepSkipped
			summary.Details = append(summary.Details, detail)
			s.logger.Warn("skipping malformed subscription", zap.Stringer("company_id", snap.CompanyID), zap.Error(err))
			continue
		}

		summary.Checked++
		detail.DaysPastDue = decision.DaysPastDue
		detail.ShouldFreeze = decision.ShouldFreeze
		detail.ShouldUnfreeze = decision.ShouldUnfreeze
		switch {
		case decision.ShouldFreeze && snap.CompanyActive:
			detail.Action = SweepFreeze
		case decision.ShouldUnfreeze:
			detail.Action = SweepUnfreeze
		}
		daysPastDue[snap.CompanyID] = decision.DaysPastDue
		summary.Details = append(summary.Details, detail)
	}
	s.metrics.RecordsSkipped(summary.Skipped)

	toFreeze := lo.FilterMap(summary.Details, func(d SweepDetail, _ int) (uuid.UUID, bool) {
		return d.CompanyID, d.Action == SweepFreeze
	})
	toUnfreeze := lo.FilterMap(summary.Details, func(d SweepDetail, _ int) (uuid.UUID, bool) {
		return d.CompanyID, d.Action == SweepUnfreeze
	})

	if opts.DryRun {
		summary.Frozen = len(toFreeze)
		summary.Unfrozen = len(toUnfreeze)
		return summary, nil
	}

	frozen, err := s.repo.SetCompaniesActive(ctx, toFreeze, false, true)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("freeze companies: %w", err)
	}
	for _, id := range frozen {
		details := map[string]any{"source": "health_sweep", "run_id": runID, "days_past_due": daysPastDue[id]}
		summary.Errors += s.emit(ctx, changeEvents(id, ActionFreeze, details, true)...)
	}

	unfrozen, err := s.repo.SetCompaniesActive(ctx, toUnfreeze, true, false)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("unfreeze companies: %w", err)
	}
	for _, id := range unfrozen {
		details := map[string]any{"source": "health_sweep", "run_id": runID}
		summary.Errors += s.emit(ctx, changeEvents(id, ActionUnfreeze, details, false)...)
	}

	// Companies another writer already moved keep their report line but are not counted.
	for i := range summary.Details {
		d := &summary.Details[i]
		if (d.Action == SweepFreeze && !slices.Contains(frozen, d.CompanyID)) ||
			(d.Action == SweepUnfreeze && !slices.Contains(unfrozen, d.CompanyID)) {
			d.Action = SweepNone
		}
	}

	summary.Frozen = len(frozen)
	summary.Unfrozen = len(unfrozen)
	s.metrics.CompaniesFrozen("health_sweep", summary.Frozen)
	s.metrics.CompaniesUnfrozen("health_sweep", summary.Unfrozen)

	names := make(map[uuid.UUID]string, len(snapshots))
	for _, snap := range snapshots {
		names[snap.CompanyID] = snap.CompanyName
	}
	jobs := make([]notice, 0, len(frozen)+len(unfrozen))
	for _, id := range frozen {
		jobs = append(jobs, notice{companyID: id, kind: notify.KindCompanyFrozen, data: map[string]any{"company_name": names[id]}})
	}
	for _, id := range unfrozen {
		jobs = append(jobs, notice{companyID: id, kind: notify.KindCompanyUnfrozen, data: map[string]any{"company_name": names[id]}})
	}
	sent, failed := s.dispatch(ctx, jobs, now, false)
	summary.Errors += failed
	s.logger.Debug("sweep notices dispatched", zap.Int("sent", sent))

	return summary, nil
}

func (s *service) RunTrialSweep(ctx context.Context) (TrialSweepSummary, error) {
	start := time.Now()
	release, err := s.lease(ctx, JobTrialSweep)
	if err != nil {
		s.metrics.SweepCompleted(JobTrialSweep, sweepOutcome(err, false), time.Since(start))
		return TrialSweepSummary{}, err
	}
	defer release()

	runID := ulid.Make().String()
	ctx = systemContext(ctx, runID)
	summary := TrialSweepSummary{RunID: runID}
	now := s.now().UTC()

	expired, err := s.repo.ExpireTrials(ctx, now)
	if err != nil {
		s.metrics.SweepCompleted(JobTrialSweep, "error", time.Since(start))
		return TrialSweepSummary{}, fmt.Errorf("expire trials: %w", err)
	}
	summary.TrialsExpired = len(expired)
	s.metrics.TrialsExpired(len(expired))

	for _, trial := range expired {
		summary.Errors += s.emit(ctx, eventlog.Billing(trial.CompanyID, eventlog.BillingTrialExpired,
			map[string]any{"status": string(lifecycle.StatusTrialing)},
			map[string]any{"status": string(lifecycle.StatusTrialExpired)},
			map[string]any{"trial_ended_at": trial.TrialEnded.Format(time.RFC3339), "run_id": runID},
		))
	}

	// Expiry notices whose delivery failed on an earlier run are picked up again here.
	pending, err := s.repo.ListUnnotifiedExpiredTrials(ctx, string(notify.KindTrialExpired))
	if err != nil {
		summary.Errors++
		s.logger.Error("list unnotified expired trials", zap.Error(err))
		pending = expired
	}
	jobs := make([]notice, 0, len(pending))
	for _, trial := range pending {
		jobs = append(jobs, notice{
			companyID: trial.CompanyID,
			kind:      notify.KindTrialExpired,
			data:      map[string]any{"company_name": trial.CompanyName},
		})
	}
	_, failed := s.dispatch(ctx, jobs, now, true)
	summary.Errors += failed

	trialing, err := s.repo.ListTrialing(ctx)
	if err != nil {
		summary.Errors++
		s.logger.Error("list trialing subscriptions", zap.Error(err))
	}
	warnings := make([]notice, 0)
	for _, snap := range trialing {
		if snap.TrialEndsAt == nil {
			continue
		}
		daysLeft := lifecycle.DaysUntil(now, *snap.TrialEndsAt)
		if !slices.Contains(s.cfg.TrialWarningDays, daysLeft) {
			continue
		}
		warnings = append(warnings, notice{
			companyID: snap.CompanyID,
			kind:      notify.TrialWarning(daysLeft),
			data: map[string]any{
				"company_name":  snap.CompanyName,
				"days_left":     daysLeft,
				"trial_ends_at": snap.TrialEndsAt.Format(time.DateOnly),
			},
		})
	}
	sent, failed := s.dispatch(ctx, warnings, now, true)
	summary.TrialWarningsSent = sent
	summary.Errors += failed

	health, err := s.RunHealthSweep(ctx, SweepOptions{})
	switch {
	case err == nil:
		summary.CompaniesFrozen = health.Frozen
		summary.Errors += health.Errors
	case errors.Is(err, ErrSweepInProgress):
		s.logger.Info("health sweep already running, skipping freeze pass", zap.String("run_id", runID))
	default:
		summary.Errors++
		s.logger.Error("health sweep", zap.String("run_id", runID), zap.Error(err))
	}

	s.metrics.SweepCompleted(JobTrialSweep, "ok", time.Since(start))
	s.logger.Info("trial sweep completed",
		zap.String("run_id", runID),
		zap.Int("trials_expired", summary.TrialsExpired),
		zap.Int("trial_warnings_sent", summary.TrialWarningsSent),
		zap.Int("companies_frozen", summary.CompaniesFrozen),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (s *service) lease(ctx context.Context, job string) (func(), error) {
	release, ok, err := s.locker.TryLock(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lease: %w", job, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSweepInProgress, job)
	}
	return release, nil
}

type notice struct {
	companyID uuid.UUID
	kind      notify.Kind
	data      map[string]any
}

// dispatch sends notices with bounded concurrency and returns how many were sent and how many failed.
// With dedupe set, each (company, kind) pair is sent at most once per UTC day.
func (s *service) dispatch(ctx context.Context, jobs []notice, now time.Time, dedupe bool) (int, int) {
	if len(jobs) == 0 {
		return 0, 0
	}

	var sent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NotifyConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			var (
				ok  bool
				err error
			)
			if dedupe {
				ok, err = s.notifyOnce(gctx, job, now)
			} else {
				ok, err = s.notifyRecipients(gctx, job)
			}
			if err != nil {
				failed.Add(1)
				s.logger.Warn("send notification",
					zap.Stringer("company_id", job.companyID),
					zap.String("kind", string(job.kind)),
					zap.Error(err),
				)
				return nil
			}
			if ok {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), int(failed.Load())
}

// notifyOnce claims the (company, kind, day) ledger entry before sending and releases it when the
// send fails so the next run retries.
func (s *service) notifyOnce(ctx context.Context, job notice, now time.Time) (bool, error) {
	claimed, err := s.repo.ClaimNotification(ctx, job.companyID, string(job.kind), now)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	if !claimed {
		s.metrics.Notification(string(job.kind), "duplicate")
		return false, nil
	}

	sent, err := s.notifyRecipients(ctx, job)
	if err != nil || !sent {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := s.repo.ReleaseNotification(releaseCtx, job.companyID, string(job.kind), now); rerr != nil {
			s.logger.Error("release notification claim", zap.Stringer("company_id", job.companyID), zap.Error(rerr))
		}
	}
	return sent, err
}

func (s *service) notifyRecipients(ctx context.Context, job notice) (bool, error) {
	recipients, err := s.repo.MemberEmails(ctx, job.companyID, []Role{RoleOwner, RoleAdmin})
	if err != nil {
		return false, fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		s.metrics.Notification(string(job.kind), "no_recipients")
		return false, nil
	}

	if err := s.notifier.Notify(ctx, notify.Message{
		CompanyID:  job.companyID,
		Kind:       job.kind,
		Recipients: recipients,
		Data:       job.data,
	}); err != nil {
		s.metrics.Notification(string(job.kind), "failed")
		return false, err
	}
	s.metrics.Notification(string(job.kind), "sent")
	return true, nil
}

// notifyOwners sends a single best-effort notice outside of a sweep.
func (s *service) notifyOwners(ctx context.Context, companyID uuid.UUID, kind notify.Kind, data map[string]any) {
	if _, err := s.notifyRecipients(ctx, notice{companyID: companyID, kind: kind, data: data}); err != nil {
		s.logger.Warn("send notification", zap.Stringer("company_id", companyID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

// systemContext stamps the sweep as a system actor so log entries are attributed to the job.
func systemContext(ctx context.Context, runID string) context.Context {
	requestID := runID
	if audit, ok := requesttrace.FromContext(ctx); ok && audit.RequestID != "" {
		requestID = audit.RequestID
	}
	return requesttrace.IntoContext(ctx, requesttrace.System(requestID))
}

func sweepOutcome(err error, dryRun bool) string {
	switch {
	case errors.Is(err, ErrSweepInProgress):
		return "busy"
	case err != nil:
		return "error"
	case dryRun:
		return "dry_run"
	default:
		return "ok"
	}
}
