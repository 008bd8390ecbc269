package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
	platformauth "github.com/zenGate-Global/palmyra-payroll/platform/go/auth"
)

// ValidateAuthenticationViaSwagger only checks that the credential declared by the operation is present.
// Verification happens in the JWT and service key middlewares.
func ValidateAuthenticationViaSwagger(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return fmt.Errorf("no request in validation input")
	}

	switch input.SecuritySchemeName {
	case "bearerAuth":
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fmt.Errorf("missing or invalid Authorization header")
		}
	case "serviceKey":
		if _, ok := platformauth.ExtractJWTToken(r); !ok && r.Header.Get(platformauth.ServiceKeyHeader) == "" {
			return fmt.Errorf("missing service key")
		}
	}
	return nil
}

// ContractValidator validates requests against doc and renders failures with the API error envelope.
// Server URLs are ignored so the same contract validates behind any host.
func ContractValidator(doc *openapi3.T) func(http.Handler) http.Handler {
	doc.Servers = nil
	return oapimiddleware.OapiRequestValidatorWithOptions(doc, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: ValidateAuthenticationViaSwagger,
		},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			code := apierror.CodeValidation
			switch statusCode {
			case http.StatusUnauthorized:
				code = apierror.CodeUnauthorized
			case http.StatusForbidden:
				code = apierror.CodeForbidden
			case http.StatusNotFound:
				code = apierror.CodeNotFound
			}
			if statusCode >= http.StatusInternalServerError {
				code = apierror.CodeInternal
			}
			apierror.Write(w, statusCode, code, message)
		},
	})
}
