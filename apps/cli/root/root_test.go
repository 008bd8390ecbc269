package root

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandsWired(t *testing.T) {
	names := map[string]bool{}
	for _, c := range Root().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"auth", "bootstrap", "plan", "company", "sweep"} {
		require.True(t, names[want], want)
	}
	require.NotNil(t, Root().PersistentFlags().Lookup("env-key"))
	require.NotNil(t, Root().PersistentFlags().Lookup("database-url"))
}

func TestDevTokenCommand(t *testing.T) {
	var out bytes.Buffer
	Root().SetOut(&out)
	Root().SetArgs([]string{"auth", "devtoken", "--project-id", "demo", "--user-id", "u1", "--email", "u1@example.com"})
	t.Cleanup(func() { Root().SetArgs(nil) })

	require.NoError(t, Execute(context.Background()))
	token := strings.TrimSpace(out.String())
	require.Len(t, strings.Split(token, "."), 3)
}
