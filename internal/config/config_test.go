package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Sale.ID)
	assert.True(t, cfg.Sale.BasePrice.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, 365*24*time.Hour, cfg.Sale.LockPeriod)
	assert.Equal(t, []int{60, 300, 3600, 86400}, cfg.MarketData.Intervals)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
sale:
  symbol: LRN
  total_supply: 1000
  base_price: 0.25
watcher:
  address_seed: seed
  assets:
    - network: ethereum
      asset: USDC
      contract: "0x0000000000000000000000000000000000000001"
      decimals: 6
      kind: settlement
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("TOKENLEDGER_SALE_DEMAND_WINDOW", "5m")
	t.Setenv("TOKENLEDGER_SALE_DIVIDEND_POOL", "1234.5")

	cfg, err := Load(zaptest.NewLogger(t), path)
	require.NoError(t, err)

	assert.Equal(t, "LRN", cfg.Sale.Symbol)
	assert.Equal(t, int64(1000), cfg.Sale.TotalSupply)
	assert.True(t, cfg.Sale.BasePrice.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, 5*time.Minute, cfg.Sale.DemandWindow)
	assert.True(t, cfg.Sale.DividendPool.Equal(decimal.RequireFromString("1234.5")))
	require.Len(t, cfg.Watcher.Assets, 1)

	asset, ok := cfg.Watcher.FindAsset("Ethereum", "usdc")
	require.True(t, ok)
	assert.Equal(t, int32(6), asset.Decimals)
}

func TestValidateRejectsNonsense(t *testing.T) {
	cfg := Default()
	cfg.Sale.TotalSupply = -1
	cfg.Sale.Symbol = ""
	cfg.MarketData.Intervals = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sale.total_supply")
	assert.Contains(t, err.Error(), "sale.symbol")
	assert.Contains(t, err.Error(), "marketdata.intervals")
}

func TestValidateRateLimit(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "1200-M", cfg.Server.RateLimit)

	cfg.Server.RateLimit = ""
	require.NoError(t, cfg.Validate())

	cfg.Server.RateLimit = "fast"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.rate_limit")
}
