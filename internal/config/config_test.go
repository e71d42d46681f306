package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-oracle/internal/oracle"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, uint64(20), cfg.Oracle.MaxQuotes)
	assert.Equal(t, 50, cfg.Oracle.Percentile)
	assert.Equal(t, 12*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Alerting.Cooldown)
	assert.Equal(t, FeedSourceChain, cfg.Feed.Source)
	assert.Equal(t, oracle.DivisorWindow, cfg.DivisorPolicy())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
feed:
  source: file
  file: quotes.json
oracle:
  max_blocks_back: 5
  max_quotes: 3
  percentile: 90
  divisor_policy: budget
  decimals: 8
scheduler:
  every_blocks: 2
  poll_interval: 1s
`))
	require.NoError(t, err)

	assert.Equal(t, uint64(5), cfg.Oracle.MaxBlocksBack)
	assert.Equal(t, uint64(3), cfg.Oracle.MaxQuotes)
	assert.Equal(t, int32(8), cfg.Oracle.Decimals)
	assert.Equal(t, oracle.DivisorBudget, cfg.DivisorPolicy())
	assert.Equal(t, uint64(2), cfg.Scheduler.EveryBlocks)
	assert.Equal(t, time.Second, cfg.Scheduler.PollInterval)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("QUOTEORACLE_ORACLE_PERCENTILE", "75")
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Oracle.Percentile)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "zero max quotes", body: "oracle:\n  max_quotes: 0\n", want: "oracle.max_quotes must be greater than zero"},
		{name: "zero max blocks back", body: "oracle:\n  max_blocks_back: 0\n", want: "oracle.max_blocks_back must be greater than zero"},
		{name: "percentile too high", body: "oracle:\n  percentile: 101\n"},
		{name: "unknown divisor", body: "oracle:\n  divisor_policy: mean\n"},
		{name: "file source without path", body: "feed:\n  source: file\n"},
		{name: "unknown source", body: "feed:\n  source: kafka\n"},
		{name: "telegram without token", body: "alerting:\n  telegram:\n    enabled: true\n    chat_id: x\n"},
		{name: "zero every blocks", body: "scheduler:\n  every_blocks: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			if tt.want != "" {
				assert.ErrorContains(t, err, tt.want)
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 10}}
	assert.Equal(t, 10, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 3, cfg.ResolveMaxPoints(3))
}
