// Package apierror writes the JSON error envelope shared by every API endpoint.
package apierror

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the envelope.
const (
	CodeValidation      = "validation_error"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeSweepInProgress = "sweep_in_progress"
	CodeCompanyFrozen   = "company_frozen"
	CodeInternal        = "internal_error"
)

// Envelope is the body of every error response.
type Envelope struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// Write renders an error envelope with the given status.
func Write(w http.ResponseWriter, status int, code, message string) {
	WriteEnvelope(w, status, Envelope{Error: code, Message: message})
}

// WriteEnvelope renders a prepared envelope.
func WriteEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
