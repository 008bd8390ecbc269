package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		expectSlug  string
		expectError bool
	}{
		{
			name:       "already normalized",
			input:      "acme-payroll",
			expectSlug: "acme-payroll",
		},
		{
			name:       "trims whitespace and lowercases",
			input:      "  Beta-Works ",
			expectSlug: "beta-works",
		},
		{
			name:        "empty string",
			input:       "   ",
			expectError: true,
		},
		{
			name:        "invalid characters",
			input:       "acme_payroll",
			expectError: true,
		},
		{
			name:        "trailing hyphen",
			input:       "acme-",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			slug, err := NormalizeSlug(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expectSlug, slug)
		})
	}
}

func TestSlugFromName(t *testing.T) {
	t.Parallel()

	slug, err := SlugFromName("Acme & Sons Ltd.")
	require.NoError(t, err)
	require.Equal(t, "acme-sons-ltd", slug)

	_, err = SlugFromName("!!!")
	require.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	script := `-- header; with a semicolon
CREATE TABLE a (id INT);
CREATE FUNCTION f() RETURNS INT LANGUAGE sql AS
$$ SELECT 1; $$;
INSERT INTO a VALUES (';');
-- trailing comment`

	stmts := splitStatements(script)
	require.Len(t, stmts, 3)
	require.Contains(t, stmts[1], "SELECT 1; $$")
	require.Equal(t, "INSERT INTO a VALUES (';')", stmts[2])
}
