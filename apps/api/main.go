package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/apps/internal/wiring"
	platformlogging "github.com/zenGate-Global/palmyra-payroll/platform/go/logging"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/palmyra-payroll/platform/go/tenant/middleware"
)

type config struct {
	Port                string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	JobTimeout          time.Duration `env:"JOB_TIMEOUT" envDefault:"10m"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL         string        `env:"DATABASE_URL,required"`
	DatabaseMaxConns    int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	AuthProvider        string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	FirebaseProjectID   string        `env:"GCLOUD_PROJECT"`
	FirebaseCredentials string        `env:"FIREBASE_CONFIG"`
	ServiceKey          string        `env:"SERVICE_KEY,required"`
	CompanyCacheTTL     time.Duration `env:"COMPANY_CACHE_TTL" envDefault:"30s"`
	AllowedOrigins      []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	Lifecycle           wiring.Config
}

func main() {
	ctx := context.Background()

	// A missing .env is fine; the environment wins over the file.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString: cfg.DatabaseURL,
		MaxConns:   cfg.DatabaseMaxConns,
		SearchPath: tenant.BuildSchemaName(cfg.Lifecycle.EnvKey),
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	services, err := wiring.Open(ctx, pool, cfg.Lifecycle, logger, registry)
	if err != nil {
		logger.Fatal("init services", zap.Error(err))
	}

	authMiddleware, err := buildAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init auth", zap.Error(err))
	}

	companies := services.Stores.Companies
	handler, err := newRouter(ctx, routerDeps{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		JobTimeout:     cfg.JobTimeout,
		Auth:           authMiddleware,
		ServiceKey:     cfg.ServiceKey,
		Billing:        services.Billing,
		Companies:      services.Companies,
		CompanyStatus: tenantmiddleware.StatusLookupFunc(func(ctx context.Context, id uuid.UUID) (bool, error) {
			active, err := companies.IsActive(ctx, id)
			if errors.Is(err, persistence.ErrNotFound) {
				return false, tenantmiddleware.ErrCompanyNotFound
			}
			return active, err
		}),
		CompanyCacheTTL: cfg.CompanyCacheTTL,
		AllowedOrigins:  cfg.AllowedOrigins,
		Metrics:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			if services.Archive != nil {
				return services.Archive.Check(ctx)
			}
			return nil
		},
	})
	if err != nil {
		logger.Fatal("init router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: max(2*cfg.RequestTimeout, cfg.JobTimeout+cfg.RequestTimeout),
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("env", cfg.Lifecycle.EnvKey))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := services.Close(shutdownCtx); err != nil {
		logger.Error("close services", zap.Error(err))
	}
}
