package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
	platformlogging "github.com/zenGate-Global/palmyra-payroll/platform/go/logging"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/tenant"
)

// ErrCompanyNotFound is returned by a StatusLookup for unknown companies.
var ErrCompanyNotFound = errors.New("company not found")

// StatusLookup reads the authoritative active flag of a company.
type StatusLookup interface {
	IsActive(ctx context.Context, companyID uuid.UUID) (bool, error)
}

// StatusLookupFunc adapts a function to StatusLookup.
type StatusLookupFunc func(ctx context.Context, companyID uuid.UUID) (bool, error)

func (f StatusLookupFunc) IsActive(ctx context.Context, companyID uuid.UUID) (bool, error) {
	return f(ctx, companyID)
}

// Config controls middleware behavior.
type Config struct {
	// URLParam names the chi route parameter holding the company id. Defaults to companyId.
	URLParam string
	// CacheTTL bounds how long a company status is reused; zero disables caching.
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// WriteGuard resolves the company of a company-scoped route and attaches tenant.Scope to the context.
// Requests with non-safe methods on a frozen company are rejected with 423 company_frozen.
type WriteGuard struct {
	lookup StatusLookup
	param  string
	cache  *gocache.Cache
	logger *zap.Logger
}

// NewWriteGuard constructs a WriteGuard.
func NewWriteGuard(lookup StatusLookup, cfg Config) *WriteGuard {
	if lookup == nil {
		panic("write guard: status lookup is required")
	}
	g := &WriteGuard{lookup: lookup, param: cfg.URLParam, logger: cfg.Logger}
	if g.param == "" {
		g.param = "companyId"
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if cfg.CacheTTL > 0 {
		g.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return g
}

// Forget drops the cached status of a company so the next request reads it again.
func (g *WriteGuard) Forget(companyID uuid.UUID) {
	if g.cache != nil {
		g.cache.Delete(companyID.String())
	}
}

// Handler is the chi middleware.
func (g *WriteGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, g.param)
		companyID, err := uuid.Parse(raw)
		if err != nil {
			apierror.WriteEnvelope(w, http.StatusBadRequest, apierror.Envelope{
				Error:   apierror.CodeValidation,
				Message: "invalid company id",
				Fields:  map[string][]string{g.param: {"must be a valid uuid"}},
			})
			return
		}

		active, err := g.status(r.Context(), companyID)
		switch {
		case errors.Is(err, ErrCompanyNotFound):
			apierror.Write(w, http.StatusNotFound, apierror.CodeNotFound, "company not found")
			return
		case err != nil:
			platformlogging.FromRequest(r, g.logger).Error("resolve company status", zap.Stringer("company_id", companyID), zap.Error(err))
			apierror.Write(w, http.StatusInternalServerError, apierror.CodeInternal, "internal error")
			return
		}

		if !active && !safeMethod(r.Method) {
			apierror.Write(w, http.StatusLocked, apierror.CodeCompanyFrozen,
				"This company is frozen. Changes are disabled until the account is restored.")
			return
		}

		ctx := tenant.WithScope(r.Context(), tenant.Scope{CompanyID: companyID, Active: active})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *WriteGuard) status(ctx context.Context, companyID uuid.UUID) (bool, error) {
	key := companyID.String()
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			return v.(bool), nil
		}
	}

	active, err := g.lookup.IsActive(ctx, companyID)
	if err != nil {
		return false, err
	}
	if g.cache != nil {
		g.cache.SetDefault(key, active)
	}
	return active, nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
