package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/domains/companies/be/service"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
	platformlogging "github.com/zenGate-Global/palmyra-payroll/platform/go/logging"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/tenant"
)

// Handler exposes company operations over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("company service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the company-scoped routes. Middlewares (typically the write guard) run
// only for these routes.
func (h *Handler) RegisterRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.Route("/companies/{companyId}", func(r chi.Router) {
		r.Use(middlewares...)
		r.Get("/access", h.Access)
		r.Patch("/", h.Update)
	})
}

type accessResponse struct {
	Writable bool    `json:"writable"`
	Reason   *string `json:"reason"`
	Message  *string `json:"message"`
}

type companyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Access implements GET /companies/{companyId}/access
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyIDFrom(w, r)
	if !ok {
		return
	}

	state, err := h.svc.Access(r.Context(), companyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := accessResponse{Writable: state.Writable}
	if !state.Writable {
		reason, message := string(state.Reason), state.Message
		resp.Reason, resp.Message = &reason, &message
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update implements PATCH /companies/{companyId}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyIDFrom(w, r)
	if !ok {
		return
	}

	var input service.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apierror.Write(w, http.StatusBadRequest, apierror.CodeValidation, "request body must be a JSON object")
		return
	}

	company, err := h.svc.UpdateName(r.Context(), companyID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, companyResponse{
		ID:        company.ID,
		Name:      company.Name,
		Slug:      company.Slug,
		IsActive:  company.IsActive,
		CreatedAt: company.CreatedAt,
		UpdatedAt: company.UpdatedAt,
	})
}

// companyIDFrom prefers the scope resolved by the write guard and falls back to the route parameter.
func companyIDFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if scope, ok := tenant.FromContext(r.Context()); ok {
		return scope.CompanyID, true
	}
	id, err := uuid.Parse(chi.URLParam(r, "companyId"))
	if err != nil {
		apierror.WriteEnvelope(w, http.StatusBadRequest, apierror.Envelope{
			Error:   apierror.CodeValidation,
			Message: "invalid company id",
			Fields:  map[string][]string{"companyId": {"must be a valid uuid"}},
		})
		return uuid.Nil, false
	}
	return id, true
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
		apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "company not found")
	case errors.Is(err, service.ErrFrozen):
		apierror.Write(w, http.StatusLocked, apierror.CodeCompanyFrozen,
			"This company is frozen. Changes are disabled until the account is restored.")
	default:
		platformlogging.FromRequest(r, h.logger).Error("company operation failed", zap.Error(err))
		apierror.Write(w, http.StatusInternalServerError, apierror.CodeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
