package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "settings", "show", "--data-dir", dir, "--webhook", "https://example.test/hook")
	require.NoError(t, err)
	require.Contains(t, out, "(not set)")
	require.Contains(t, out, "https://example.test/hook")

	out, err = run(t, "settings", "set-webhook", "https://other.test/hook", "--data-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "Paramètres sauvegardés")

	out, err = run(t, "settings", "show", "--data-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "https://other.test/hook")

	_, err = run(t, "settings", "set-webhook", "pas une url", "--data-dir", dir)
	require.Error(t, err)

	_, err = run(t, "settings", "reset-name", "--data-dir", dir)
	require.NoError(t, err)
}
