package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Component: "palmyra-cli", Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", zap.String("job", "check-subscription-health"))
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "WARNING", line["severity"])
	require.Equal(t, "shown", line["message"])
	require.Equal(t, "palmyra-cli", line["component"])

	_, err = NewLogger(Config{Level: "loud"})
	require.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Use(RequestLogger(zap.New(core)))
	r.Get("/companies/{companyId}/access", func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
	})
	r.Patch("/companies/{companyId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/companies/c1/access", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/companies/c1", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "/companies/{companyId}/access", entries[0].ContextMap()["route"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.EqualValues(t, http.StatusLocked, entries[1].ContextMap()["status"])
}

func TestFromRequestFallback(t *testing.T) {
	fallback := zap.NewNop()
	require.Same(t, fallback, FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), fallback))
}
