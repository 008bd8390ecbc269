package gcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialsOptions(t *testing.T) {
	require.Empty(t, Credentials{ProjectID: "demo"}.options())
	require.Len(t, Credentials{CredentialsFile: "/secrets/sa.json"}.options(), 1)
}
