package tenant

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Scope is the company a request operates on, resolved by the write guard.
type Scope struct {
	CompanyID uuid.UUID
	Active    bool
}

type ctxKey string

const scopeKey ctxKey = "PALMYRA_COMPANY_SCOPE"

// WithScope returns a derived context carrying the company Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext extracts the company Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(scopeKey)
	if v == nil {
		return Scope{}, false
	}

	scope, ok := v.(Scope)
	return scope, ok
}

// BuildSchemaName returns the PostgreSQL schema holding the platform tables of an environment.
// Format: <envKey>__payroll, with the env key in snake_case so several environments can share a database.
func BuildSchemaName(envKey string) string {
	envKey = strings.TrimSpace(envKey)
	if envKey == "" {
		return ""
	}
	return ToSnake(envKey) + "__payroll"
}
