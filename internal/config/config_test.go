package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  env: prod
  log_level: debug
  http_addr: ":8080"
data:
  market_db: /tmp/market.db
  results_db: /tmp/results.db
backtest:
  initial_capital: 50000000
  commission_rate: 0.0005
  slippage_rate: 0.0002
  max_concurrent: 4
  gap_policy: fail
  date_axis: intersection
`))
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, int64(50_000_000), cfg.Backtest.InitialCapital)
	assert.Equal(t, "fail", cfg.Backtest.GapPolicy)
	assert.Equal(t, "intersection", cfg.Backtest.DateAxis)
	assert.Equal(t, 4, cfg.Backtest.MaxConcurrent)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `app: {}`))
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9981", cfg.App.HTTPAddr)
	assert.Equal(t, "data/market.db", cfg.Data.MarketDB)
	assert.Equal(t, int64(100_000_000), cfg.Backtest.InitialCapital)
	assert.InDelta(t, 0.00015, cfg.Backtest.CommissionRate, 1e-12)
	assert.InDelta(t, 0.0001, cfg.Backtest.SlippageRate, 1e-12)
	assert.Equal(t, "carry", cfg.Backtest.GapPolicy)
	assert.Equal(t, "union", cfg.Backtest.DateAxis)
	assert.Equal(t, 2, cfg.Backtest.MaxConcurrent)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, `
backtest:
  gap_policy: sometimes
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
backtest:
  commission_rate: -0.1
`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `
backtest:
  date_axis: diagonal
`))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
