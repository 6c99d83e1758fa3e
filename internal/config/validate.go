package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"
)

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		add("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.Server.RateLimit); err != nil {
			add("server.rate_limit %q: %v", c.Server.RateLimit, err)
		}
	}

	s := c.Sale
	if strings.TrimSpace(s.ID) == "" {
		add("sale.id is required")
	}
	if strings.TrimSpace(s.Symbol) == "" {
		add("sale.symbol is required")
	}
	if s.TotalSupply < 0 {
		add("sale.total_supply must not be negative")
	}
	if !s.BasePrice.IsPositive() {
		add("sale.base_price must be positive")
	}
	if s.CurveSteepness.IsNegative() || s.DemandSensitivity.IsNegative() {
		add("sale.curve_steepness and sale.demand_sensitivity must not be negative")
	}
	if s.DemandWindow <= 0 {
		add("sale.demand_window must be positive")
	}
	if s.LockPeriod < 0 {
		add("sale.lock_period must not be negative")
	}
	if s.EarlyUnlockFee.IsNegative() || s.EarlyUnlockFee.GreaterThan(decimal.NewFromInt(1)) {
		add("sale.early_unlock_fee must be within [0, 1]")
	}
	if s.DividendPool.IsNegative() {
		add("sale.dividend_pool must not be negative")
	}

	if len(c.MarketData.Intervals) == 0 {
		add("marketdata.intervals must not be empty")
	}
	for _, iv := range c.MarketData.Intervals {
		if iv <= 0 {
			add("marketdata.intervals must be positive, got %d", iv)
		}
	}

	if c.Watcher.Enabled {
		if c.Watcher.RPCURL == "" {
			add("watcher.rpc_url is required when the watcher is enabled")
		}
		if c.Watcher.PollInterval <= 0 {
			add("watcher.poll_interval must be positive")
		}
		if len(c.Watcher.Assets) == 0 {
			add("watcher.assets must list at least one asset")
		}
	}
	if c.Watcher.AddressSeed == "" && len(c.Watcher.Assets) > 0 {
		add("watcher.address_seed is required when assets are configured")
	}
	for i, a := range c.Watcher.Assets {
		if a.Network == "" || a.Asset == "" || a.Contract == "" {
			add("watcher.assets[%d]: network, asset and contract are required", i)
		}
		if a.Kind != "settlement" && a.Kind != "token" {
			add("watcher.assets[%d]: kind must be settlement or token", i)
		}
		if a.Decimals < 0 || a.Decimals > 36 {
			add("watcher.assets[%d]: decimals out of range", i)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// FindAsset returns the tracked asset for a (network, asset) pair.
func (w *WatcherConfig) FindAsset(network, asset string) (AssetConfig, bool) {
	for _, a := range w.Assets {
		if strings.EqualFold(a.Network, network) && strings.EqualFold(a.Asset, asset) {
			return a, true
		}
	}
	return AssetConfig{}, false
}
