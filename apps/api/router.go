package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/contracts"
	billinghandler "github.com/zenGate-Global/palmyra-payroll/domains/billing/be/handler"
	billingservice "github.com/zenGate-Global/palmyra-payroll/domains/billing/be/service"
	companieshandler "github.com/zenGate-Global/palmyra-payroll/domains/companies/be/handler"
	companiesservice "github.com/zenGate-Global/palmyra-payroll/domains/companies/be/service"
	platformauth "github.com/zenGate-Global/palmyra-payroll/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-payroll/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-payroll/platform/go/middleware"
	tenantmiddleware "github.com/zenGate-Global/palmyra-payroll/platform/go/tenant/middleware"
)

// routerDeps are the collaborators mounted by newRouter.
type routerDeps struct {
	Logger          *zap.Logger
	RequestTimeout  time.Duration
	JobTimeout      time.Duration
	Auth            func(http.Handler) http.Handler
	ServiceKey      string
	Billing         billingservice.Service
	Companies       companiesservice.Service
	CompanyStatus   tenantmiddleware.StatusLookup
	CompanyCacheTTL time.Duration
	AllowedOrigins  []string
	Metrics         http.Handler
	// Ready reports whether dependencies (database, report bucket) are reachable.
	Ready func(ctx context.Context) error
}

func newRouter(ctx context.Context, d routerDeps) (http.Handler, error) {
	contract, err := contracts.LoadBilling(ctx)
	if err != nil {
		return nil, err
	}
	if d.RequestTimeout <= 0 || d.JobTimeout <= 0 {
		return nil, fmt.Errorf("request and job timeouts must be positive")
	}
	if d.ServiceKey == "" {
		return nil, fmt.Errorf("service key is required")
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		platformmiddleware.CORS(d.AllowedOrigins),
	)
	rootRouter.Use(platformlogging.RequestLogger(d.Logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				platformlogging.FromRequest(r, d.Logger).Warn("readiness check failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Metrics != nil {
		rootRouter.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, d.Logger)

	validator := platformmiddleware.ContractValidator(contract)
	writeGuard := tenantmiddleware.NewWriteGuard(d.CompanyStatus, tenantmiddleware.Config{
		CacheTTL: d.CompanyCacheTTL,
		Logger:   d.Logger,
	})
	billingHTTPHandler := billinghandler.New(d.Billing, d.Logger, billinghandler.OnStatusChange(writeGuard.Forget))
	companiesHTTPHandler := companieshandler.New(d.Companies, d.Logger)

	apiRouter := chi.NewRouter()

	// Signed-in company members.
	apiRouter.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(d.RequestTimeout))
		r.Use(d.Auth)
		r.Use(platformmiddleware.RequestTrace)
		r.Use(validator)
		billingHTTPHandler.RegisterUserRoutes(r)
		companiesHTTPHandler.RegisterRoutes(r, writeGuard.Handler)
	})

	// Scheduled jobs.
	apiRouter.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(d.JobTimeout))
		r.Use(platformauth.ServiceKey(d.ServiceKey))
		r.Use(platformmiddleware.RequestTrace)
		r.Use(validator)
		billingHTTPHandler.RegisterJobRoutes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)
	return rootRouter, nil
}
