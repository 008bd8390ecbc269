// Package clienv loads the environment shared by the admin commands and opens the resources they use.
package clienv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-payroll/apps/internal/wiring"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/logging"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-payroll/platform/go/tenant"
)

// Env is read from the process environment and an optional .env file.
type Env struct {
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Lifecycle   wiring.Config
}

// Options are the persistent flags of the admin CLI. Non-empty flags override the environment.
type Options struct {
	DatabaseURL string
	EnvKey      string
	LogLevel    string
}

// Bind registers the persistent flags on cmd.
func Bind(cmd *cobra.Command) *Options {
	o := &Options{}
	cmd.PersistentFlags().StringVar(&o.DatabaseURL, "database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&o.EnvKey, "env-key", "", "environment key selecting the <env>__payroll schema (defaults to ENV_KEY)")
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "", "log level (defaults to LOG_LEVEL or info)")
	return o
}

// Load merges the environment with the flag overrides.
func (o *Options) Load() (Env, error) {
	_ = godotenv.Load()
	return o.load(env.ToMap(os.Environ()))
}

func (o *Options) load(vars map[string]string) (Env, error) {
	if o.DatabaseURL != "" {
		vars["DATABASE_URL"] = o.DatabaseURL
	}
	if o.EnvKey != "" {
		vars["ENV_KEY"] = o.EnvKey
	}
	if o.LogLevel != "" {
		vars["LOG_LEVEL"] = o.LogLevel
	}

	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(e.DatabaseURL) == "" {
		return Env{}, errors.New("load config: database url is required (--database-url or DATABASE_URL)")
	}
	return e, nil
}

// Session holds the resources opened for one command run.
type Session struct {
	Env    Env
	Schema string
	Pool   *pgxpool.Pool
	Logger *zap.Logger
}

// Open loads the configuration, builds the logger and connects to the environment schema.
func (o *Options) Open(ctx context.Context) (*Session, error) {
	e, err := o.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{Component: "palmyra-cli", Level: e.LogLevel, Output: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	schema := tenant.BuildSchemaName(e.Lifecycle.EnvKey)
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: e.DatabaseURL, SearchPath: schema})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("init pool: %w", err)
	}

	return &Session{Env: e, Schema: schema, Pool: pool, Logger: logger}, nil
}

// Services assembles the domain services on the session pool. Metrics are not collected.
func (s *Session) Services(ctx context.Context) (*wiring.Services, error) {
	return wiring.Open(ctx, s.Pool, s.Env.Lifecycle, s.Logger, nil)
}

// Close releases the pool and flushes the logger.
func (s *Session) Close() {
	persistence.ClosePool(s.Pool)
	_ = s.Logger.Sync()
}
