package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeSlug trims whitespace, lowercases the value, and ensures it matches
// the canonical URL-safe slug pattern required for company identifiers.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}

	return normalized, nil
}

// SlugFromName derives a slug from a company display name, e.g. "Acme & Sons Ltd." -> "acme-sons-ltd".
func SlugFromName(name string) (string, error) {
	slug := strings.Trim(slugSeparator.ReplaceAllString(strings.ToLower(name), "-"), "-")
	return NormalizeSlug(slug)
}
