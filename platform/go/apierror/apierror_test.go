package apierror

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, http.StatusLocked, CodeCompanyFrozen, "frozen")

	require.Equal(t, http.StatusLocked, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"company_frozen","message":"frozen"}`, rec.Body.String())
}

func TestWriteEnvelopeFields(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteEnvelope(rec, http.StatusBadRequest, Envelope{
		Error:   CodeValidation,
		Message: "invalid request",
		Fields:  map[string][]string{"plan_id": {"is required"}},
	})
	require.JSONEq(t, `{"error":"validation_error","message":"invalid request","fields":{"plan_id":["is required"]}}`, rec.Body.String())
}
