package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
	platformlogging "github.com/zenGate-Global/palmyra-payroll/platform/go/logging"
)

// Handler exposes the billing service over HTTP.
type Handler struct {
	svc            service.Service
	logger         *zap.Logger
	onStatusChange func(companyID uuid.UUID)
}

// Option configures a Handler.
type Option func(*Handler)

// OnStatusChange registers fn to run after a freeze or unfreeze changed a company, e.g. to drop a
// cached company status.
func OnStatusChange(fn func(companyID uuid.UUID)) Option {
	return func(h *Handler) { h.onStatusChange = fn }
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger, opts ...Option) *Handler {
	if svc == nil {
		panic("billing service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	h := &Handler{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterUserRoutes mounts the endpoints called by signed-in company members.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Post("/billing/assign-plan", h.AssignPlan)
	r.Post("/billing/freeze-company", h.FreezeCompany)
}

// RegisterJobRoutes mounts the scheduled job endpoints; callers authenticate with the service key.
func (h *Handler) RegisterJobRoutes(r chi.Router) {
	r.Post("/jobs/check-subscription-health", h.CheckSubscriptionHealth)
	r.Post("/jobs/cron-subscription-health", h.CronSubscriptionHealth)
}

type subscriptionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	CompanyID          uuid.UUID  `json:"company_id"`
	PlanID             uuid.UUID  `json:"plan_id"`
	Status             string     `json:"status"`
	BillingInterval    string     `json:"billing_interval"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	TrialEndsAt        *time.Time `json:"trial_ends_at"`
}

type assignPlanResponse struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	TrialEnded   bool                 `json:"trial_ended"`
	Subscription subscriptionResponse `json:"subscription"`
}

type companyState struct {
	ID       uuid.UUID `json:"id"`
	IsActive bool      `json:"is_active"`
}

type freezeResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Company *companyState `json:"company,omitempty"`
}

type healthSweepResponse struct {
	Success bool `json:"success"`
	service.SweepSummary
}

type trialSweepResponse struct {
	Success           bool   `json:"success"`
	RunID             string `json:"runId"`
	TrialsExpired     int    `json:"trialsExpired"`
	TrialWarningsSent int    `json:"trialWarningsSent"`
	CompaniesFrozen   int    `json:"companiesFrozen"`
	Errors            int    `json:"errors"`
}

// AssignPlan implements POST /billing/assign-plan
func (h *Handler) AssignPlan(w http.ResponseWriter, r *http.Request) {
	var input service.AssignPlanInput
	if !h.decode(w, r, &input) {
		return
	}

	result, err := h.svc.AssignPlan(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sub := result.Subscription
	writeJSON(w, http.StatusOK, assignPlanResponse{
		Success:    true,
		Message:    result.Message,
		TrialEnded: result.TrialEnded,
		Subscription: subscriptionResponse{
			ID:                 sub.ID,
			CompanyID:          sub.CompanyID,
			PlanID:             sub.PlanID,
			Status:             string(sub.Status),
			BillingInterval:    string(sub.Interval),
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			TrialEndsAt:        sub.TrialEndsAt,
		},
	})
}

// FreezeCompany implements POST /billing/freeze-company
func (h *Handler) FreezeCompany(w http.ResponseWriter, r *http.Request) {
	var input service.FreezeInput
	if !h.decode(w, r, &input) {
		return
	}

	result, err := h.svc.FreezeCompany(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := freezeResponse{Success: true, Message: result.Message}
	if result.Changed {
		resp.Company = &companyState{ID: result.Company.ID, IsActive: result.Company.IsActive}
		if h.onStatusChange != nil {
			h.onStatusChange(result.Company.ID)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckSubscriptionHealth implements POST /jobs/check-subscription-health
func (h *Handler) CheckSubscriptionHealth(w http.ResponseWriter, r *http.Request) {
	var dryRun *bool
	if err := runtime.BindQueryParameter("form", true, false, "dry_run", r.URL.Query(), &dryRun); err != nil {
		apierror.WriteEnvelope(w, http.StatusBadRequest, apierror.Envelope{
			Error:   apierror.CodeValidation,
			Message: "invalid query parameter",
			Fields:  map[string][]string{"dry_run": {err.Error()}},
		})
		return
	}

	summary, err := h.svc.RunHealthSweep(r.Context(), service.SweepOptions{DryRun: dryRun != nil && *dryRun})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthSweepResponse{Success: true, SweepSummary: summary})
}

// CronSubscriptionHealth implements POST /jobs/cron-subscription-health
func (h *Handler) CronSubscriptionHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.RunTrialSweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trialSweepResponse{
		Success:           true,
		RunID:             summary.RunID,
		TrialsExpired:     summary.TrialsExpired,
		TrialWarningsSent: summary.TrialWarningsSent,
		CompaniesFrozen:   summary.CompaniesFrozen,
		Errors:            summary.Errors,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		apierror.Write(w, http.StatusBadRequest, apierror.CodeValidation, "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierror.Write(w, http.StatusBadRequest, apierror.CodeValidation, "request body must be a JSON object")
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		apierror.WriteEnvelope(w, http.StatusBadRequest, apierror.Envelope{
			Error:   apierror.CodeValidation,
			Message: "request validation failed",
			Fields:  verr.Fields,
		})
	case errors.Is(err, service.ErrUnauthorized):
		apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "authentication required")
	case errors.Is(err, service.ErrForbidden):
		apierror.Write(w, http.StatusForbidden, apierror.CodeForbidden, "you do not have permission to perform this action")
	case errors.Is(err, service.ErrNotFound):
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrSweepInProgress):
		apierror.Write(w, http.StatusConflict, apierror.CodeSweepInProgress, "a sweep is already running")
	default:
		platformlogging.FromRequest(r, h.logger).Error("billing operation failed", zap.Error(err))
		apierror.Write(w, http.StatusInternalServerError, apierror.CodeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
