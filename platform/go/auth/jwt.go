package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/apierror"
)

// ServiceKeyHeader carries the shared secret of scheduled job callers.
const ServiceKeyHeader = "X-Service-Key"

func ExtractJWTToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// ServiceKey admits requests presenting the configured key, either in X-Service-Key or as a bearer
// token. An empty key rejects every request.
func ServiceKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(ServiceKeyHeader)
			if presented == "" {
				presented, _ = ExtractJWTToken(r)
			}
			if key == "" || presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				apierror.Write(w, http.StatusUnauthorized, apierror.CodeUnauthorized, "a valid service key is required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
