package clienv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFlagsOverrideEnvironment(t *testing.T) {
	o := &Options{EnvKey: "stg", DatabaseURL: "postgres://flag"}
	e, err := o.load(map[string]string{"ENV_KEY": "dev", "DATABASE_URL": "postgres://env"})
	require.NoError(t, err)
	require.Equal(t, "stg", e.Lifecycle.EnvKey)
	require.Equal(t, "postgres://flag", e.DatabaseURL)
	require.Equal(t, "info", e.LogLevel)
	require.Equal(t, 7, e.Lifecycle.GracePeriodDays)
}

func TestLoadFromEnvironment(t *testing.T) {
	o := &Options{}
	e, err := o.load(map[string]string{"ENV_KEY": "dev", "DATABASE_URL": "postgres://env", "GRACE_PERIOD_DAYS": "3"})
	require.NoError(t, err)
	require.Equal(t, "dev", e.Lifecycle.EnvKey)
	require.Equal(t, 3, e.Lifecycle.GracePeriodDays)
}

func TestLoadRequiresEnvKeyAndDatabase(t *testing.T) {
	o := &Options{}
	_, err := o.load(map[string]string{"DATABASE_URL": "postgres://env"})
	require.Error(t, err)

	_, err = o.load(map[string]string{"ENV_KEY": "dev"})
	require.ErrorContains(t, err, "database url is required")
}
