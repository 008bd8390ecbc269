package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
)

type mockService struct {
	assignPlanFn  func(ctx context.Context, input service.AssignPlanInput) (service.AssignPlanResult, error)
	freezeFn      func(ctx context.Context, input service.FreezeInput) (service.FreezeResult, error)
	startFn       func(ctx context.Context, input service.StartInput) (service.Subscription, error)
	healthSweepFn func(ctx context.Context, opts service.SweepOptions) (service.SweepSummary, error)
	trialSweepFn  func(ctx context.Context) (service.TrialSweepSummary, error)
}

func (m *mockService) AssignPlan(ctx context.Context, input service.AssignPlanInput) (service.AssignPlanResult, error) {
	if m.assignPlanFn == nil {
		panic("assignPlanFn not configured")
	}
	return m.assignPlanFn(ctx, input)
}

func (m *mockService) FreezeCompany(ctx context.Context, input service.FreezeInput) (service.FreezeResult, error) {
	if m.freezeFn == nil {
		panic("freezeFn not configured")
	}
	return m.freezeFn(ctx, input)
}

func (m *mockService) StartSubscription(ctx context.Context, input service.StartInput) (service.Subscription, error) {
	if m.startFn == nil {
		panic("startFn not configured")
	}
	return m.startFn(ctx, input)
}

func (m *mockService) RunHealthSweep(ctx context.Context, opts service.SweepOptions) (service.SweepSummary, error) {
	if m.healthSweepFn == nil {
		panic("healthSweepFn not configured")
	}
	return m.healthSweepFn(ctx, opts)
}

func (m *mockService) RunTrialSweep(ctx context.Context) (service.TrialSweepSummary, error) {
	if m.trialSweepFn == nil {
		panic("trialSweepFn not configured")
	}
	return m.trialSweepFn(ctx)
}

func newRouter(t *testing.T, svc service.Service, opts ...Option) chi.Router {
	t.Helper()
	h := New(svc, zaptest.NewLogger(t), opts...)
	r := chi.NewRouter()
	h.RegisterUserRoutes(r)
	h.RegisterJobRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestAssignPlanSuccess(t *testing.T) {
	t.Parallel()

	companyID, planID := uuid.New(), uuid.New()
	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := &mockService{
		assignPlanFn: func(ctx context.Context, input service.AssignPlanInput) (service.AssignPlanResult, error) {
			require.Equal(t, companyID.String(), input.CompanyID)
			require.Equal(t, "yearly", input.BillingInterval)
			return service.AssignPlanResult{
				Subscription: service.Subscription{
					ID: uuid.New(), CompanyID: companyID, PlanID: planID,
					Status: lifecycle.StatusActive, Interval: lifecycle.IntervalYearly,
					CurrentPeriodStart: end.AddDate(-1, 0, 0), CurrentPeriodEnd: &end,
				},
				TrialEnded: true,
				Message:    "Plan assigned successfully. Your trial has ended and the new plan is active.",
			}, nil
		},
	}

	body := fmt.Sprintf(`{"company_id":%q,"plan_id":%q,"billing_interval":"yearly"}`, companyID, planID)
	rec, out := do(t, newRouter(t, svc), http.MethodPost, "/billing/assign-plan", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])
	require.Equal(t, true, out["trial_ended"])
	sub := out["subscription"].(map[string]any)
	require.Equal(t, "active", sub["status"])
	require.Equal(t, "yearly", sub["billing_interval"])
	require.Nil(t, sub["trial_ends_at"])
}

func TestAssignPlanErrorMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &service.ValidationError{Fields: service.FieldErrors{"plan_id": {"must be a valid uuid"}}}, http.StatusBadRequest, "validation_error"},
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", fmt.Errorf("%w: role employee", service.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("load plan: %w", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockService{
				assignPlanFn: func(context.Context, service.AssignPlanInput) (service.AssignPlanResult, error) {
					return service.AssignPlanResult{}, tc.err
				},
			}
			rec, out := do(t, newRouter(t, svc), http.MethodPost, "/billing/assign-plan", `{"company_id":"x","plan_id":"y"}`)
			require.Equal(t, tc.wantStatus, rec.Code)
			require.Equal(t, tc.wantCode, out["error"])
			require.NotEmpty(t, out["message"])
		})
	}
}

func TestAssignPlanMalformedBody(t *testing.T) {
	t.Parallel()

	rec, out := do(t, newRouter(t, &mockService{}), http.MethodPost, "/billing/assign-plan", `{"company_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", out["error"])
}

func TestFreezeCompanyResponses(t *testing.T) {
	t.Parallel()

	companyID := uuid.New()
	svc := &mockService{
		freezeFn: func(ctx context.Context, input service.FreezeInput) (service.FreezeResult, error) {
			company := service.Company{ID: companyID}
			if input.Action == "unfreeze" {
				return service.FreezeResult{Company: company, Message: "Company is already active"}, nil
			}
			return service.FreezeResult{Changed: true, Company: company, Message: "Company frozen successfully"}, nil
		},
	}
	var changed []uuid.UUID
	r := newRouter(t, svc, OnStatusChange(func(id uuid.UUID) { changed = append(changed, id) }))

	rec, out := do(t, r, http.MethodPost, "/billing/freeze-company", fmt.Sprintf(`{"company_id":%q,"action":"freeze","reason":"fraud"}`, companyID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Company frozen successfully", out["message"])
	company := out["company"].(map[string]any)
	require.Equal(t, companyID.String(), company["id"])
	require.Equal(t, false, company["is_active"])

	rec, out = do(t, r, http.MethodPost, "/billing/freeze-company", fmt.Sprintf(`{"company_id":%q,"action":"unfreeze"}`, companyID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])
	require.NotContains(t, out, "company")
	require.Equal(t, []uuid.UUID{companyID}, changed)
}

func TestCheckSubscriptionHealth(t *testing.T) {
	t.Parallel()

	var gotDryRun bool
	svc := &mockService{
		healthSweepFn: func(ctx context.Context, opts service.SweepOptions) (service.SweepSummary, error) {
			gotDryRun = opts.DryRun
			return service.SweepSummary{
				RunID: "01J00000000000000000000000", DryRun: opts.DryRun, Checked: 3, Frozen: 1,
				Details: []service.SweepDetail{{CompanyID: uuid.New(), Status: "past_due", DaysPastDue: 9, ShouldFreeze: true, Action: service.SweepFreeze}},
			}, nil
		},
	}
	r := newRouter(t, svc)

	rec, out := do(t, r, http.MethodPost, "/jobs/check-subscription-health?dry_run=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, gotDryRun)
	require.Equal(t, true, out["success"])
	require.Equal(t, float64(3), out["checked"])
	require.Equal(t, float64(1), out["frozen"])
	require.Len(t, out["details"], 1)

	rec, out = do(t, r, http.MethodPost, "/jobs/check-subscription-health?dry_run=maybe", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_error", out["error"])

	rec, _ = do(t, r, http.MethodPost, "/jobs/check-subscription-health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, gotDryRun)
}

func TestSweepInProgress(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		healthSweepFn: func(context.Context, service.SweepOptions) (service.SweepSummary, error) {
			return service.SweepSummary{}, fmt.Errorf("%w: check-subscription-health", service.ErrSweepInProgress)
		},
		trialSweepFn: func(context.Context) (service.TrialSweepSummary, error) {
			return service.TrialSweepSummary{}, service.ErrSweepInProgress
		},
	}
	r := newRouter(t, svc)

	rec, out := do(t, r, http.MethodPost, "/jobs/check-subscription-health", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "sweep_in_progress", out["error"])

	rec, out = do(t, r, http.MethodPost, "/jobs/cron-subscription-health", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "sweep_in_progress", out["error"])
}

func TestCronSubscriptionHealth(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		trialSweepFn: func(context.Context) (service.TrialSweepSummary, error) {
			return service.TrialSweepSummary{RunID: "run", TrialsExpired: 2, TrialWarningsSent: 5, CompaniesFrozen: 1}, nil
		},
	}

	rec, out := do(t, newRouter(t, svc), http.MethodPost, "/jobs/cron-subscription-health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), out["trialsExpired"])
	require.Equal(t, float64(5), out["trialWarningsSent"])
	require.Equal(t, float64(1), out["companiesFrozen"])
	require.Equal(t, float64(0), out["errors"])
}
