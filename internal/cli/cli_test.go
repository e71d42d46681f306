package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "price", "show", "export", "backfill", "migrate", "simulate-alert", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestPriceFlags(t *testing.T) {
	for _, flag := range []string{"mode", "percentile", "max-blocks-back", "max-quotes", "divisor", "block", "file"} {
		assert.NotNil(t, priceCmd.Flags().Lookup(flag), flag)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "does-not-exist.yaml"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "version:")
	assert.Nil(t, appHandle)
}
