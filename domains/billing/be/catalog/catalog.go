// Package catalog parses plan catalogs used to seed the plans table.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/zenGate-Global/palmyra-payroll/domains/billing/be/lifecycle"
)

//go:embed plans.schema.json
var schemaJSON []byte

//go:embed default_plans.json
var defaultCatalog []byte

const schemaURL = "memory://schemas/plan-catalog.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

type entry struct {
	Name             string          `json:"name"`
	PriceMonthly     decimal.Decimal `json:"price_monthly"`
	PriceYearly      decimal.Decimal `json:"price_yearly"`
	IsActive         *bool           `json:"is_active"`
	TrialEnabled     bool            `json:"trial_enabled"`
	TrialDefaultDays int             `json:"trial_default_days"`
}

// Default returns the built-in catalog.
func Default() ([]lifecycle.Plan, error) {
	return Parse(defaultCatalog)
}

// Parse validates a catalog document against the embedded JSON Schema and returns its plans
// without ids. Plans are active unless is_active is false; names must be unique ignoring case.
func Parse(data []byte) ([]lifecycle.Plan, error) {
	schema, err := catalogSchema()
	if err != nil {
		return nil, err
	}

	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return nil, fmt.Errorf("catalog validation: %w", err)
	}

	var doc struct {
		Plans []entry `json:"plans"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Plans))
	plans := make([]lifecycle.Plan, 0, len(doc.Plans))
	for _, e := range doc.Plans {
		name := strings.TrimSpace(e.Name)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("catalog validation: duplicate plan %q", name)
		}
		seen[key] = struct{}{}

		plans = append(plans, lifecycle.Plan{
			Name:             name,
			PriceMonthly:     e.PriceMonthly,
			PriceYearly:      e.PriceYearly,
			IsActive:         e.IsActive == nil || *e.IsActive,
			TrialEnabled:     e.TrialEnabled,
			TrialDefaultDays: e.TrialDefaultDays,
		})
	}
	return plans, nil
}

func catalogSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("register catalog schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile catalog schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}
