// Package contracts embeds the OpenAPI documents served and enforced by the API.
package contracts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed billing.yaml
var billingYAML []byte

// LoadBilling parses and validates the billing contract. Each call returns a fresh document.
func LoadBilling(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(billingYAML)
	if err != nil {
		return nil, fmt.Errorf("load billing contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate billing contract: %w", err)
	}
	return doc, nil
}
