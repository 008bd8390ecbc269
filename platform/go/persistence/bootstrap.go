package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/zenGate-Global/palmyra-payroll/database"
)

// BootstrapPlatformSchema applies the billing DDL in a single transaction, in dependency order:
//  1. platform/companies.sql
//  2. platform/plans.sql
//  3. platform/subscriptions.sql
//  4. platform/logs.sql
//
// When schema is non-empty it is created if missing and used as search_path for the statements.
// SQL is embedded at build time so binaries stay self-contained. The helper is idempotent and
// intended for CLI bootstrap and tests.
func BootstrapPlatformSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap platform schema: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.CompaniesSQL)...)
	statements = append(statements, splitStatements(sqlassets.PlansSQL)...)
	statements = append(statements, splitStatements(sqlassets.SubscriptionsSQL)...)
	statements = append(statements, splitStatements(sqlassets.LogsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if schema != "" {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, schema); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements splits a DDL script on semicolons outside of quotes, dollar-quoted bodies and
// line comments. Empty statements are dropped.
func splitStatements(script string) []string {
	var (
		out     []string
		current strings.Builder
		inQuote bool
		dollar  bool
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" && !commentOnly(stmt) {
			out = append(out, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case !inQuote && !dollar && c == '-' && i+1 < len(script) && script[i+1] == '-':
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				end = len(script) - i
			}
			current.WriteString(script[i : i+end])
			i += end - 1
			continue
		case !dollar && c == '\'':
			inQuote = !inQuote
		case !inQuote && c == '$' && i+1 < len(script) && script[i+1] == '$':
			dollar = !dollar
			current.WriteString("$$")
			i++
			continue
		case !inQuote && !dollar && c == ';':
			flush()
			continue
		}
		current.WriteByte(c)
	}
	flush()

	return out
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
