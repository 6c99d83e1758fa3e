package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to every environment override, e.g. TOKENLEDGER_SALE_BASE_PRICE.
const EnvPrefix = "TOKENLEDGER"

var defaultConfigPaths = []string{
	"./config.yaml",
	"./configs/config.yaml",
	"/etc/tokenledger/config.yaml",
}

// Load reads configuration from the first existing YAML files in configPaths
// (or the default locations), then applies environment overrides on top of
// Default().
func Load(logger *zap.Logger, configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if len(configPaths) == 0 {
		configPaths = defaultConfigPaths
	}
	var loaded []string
	for _, path := range configPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	if len(loaded) == 0 {
		logger.Warn("No configuration files found, using defaults and environment variables")
	} else {
		logger.Info("Loaded configuration files", zap.Strings("files", loaded))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Environment),
		zap.String("sale_id", cfg.Sale.ID),
		zap.String("database_driver", cfg.Database.Driver))
	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override keys that
// no config file mentions.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("environment", d.Environment)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.tx_max_retries", d.Database.TxMaxRetries)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)

	v.SetDefault("redis.address", d.Redis.Address)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)

	v.SetDefault("sale.id", d.Sale.ID)
	v.SetDefault("sale.symbol", d.Sale.Symbol)
	v.SetDefault("sale.total_supply", d.Sale.TotalSupply)
	v.SetDefault("sale.base_price", d.Sale.BasePrice.String())
	v.SetDefault("sale.curve_steepness", d.Sale.CurveSteepness.String())
	v.SetDefault("sale.demand_sensitivity", d.Sale.DemandSensitivity.String())
	v.SetDefault("sale.target_velocity", d.Sale.TargetVelocity.String())
	v.SetDefault("sale.demand_window", d.Sale.DemandWindow)
	v.SetDefault("sale.lock_period", d.Sale.LockPeriod)
	v.SetDefault("sale.early_unlock_fee", d.Sale.EarlyUnlockFee.String())
	v.SetDefault("sale.dividend_pool", d.Sale.DividendPool.String())

	v.SetDefault("marketdata.intervals", d.MarketData.Intervals)
	v.SetDefault("marketdata.max_retries", d.MarketData.MaxRetries)
	v.SetDefault("marketdata.channel", d.MarketData.Channel)

	v.SetDefault("watcher.enabled", d.Watcher.Enabled)
	v.SetDefault("watcher.rpc_url", d.Watcher.RPCURL)
	v.SetDefault("watcher.rpc_timeout", d.Watcher.RPCTimeout)
	v.SetDefault("watcher.rpc_rate_per_second", d.Watcher.RPCRatePerSecond)
	v.SetDefault("watcher.poll_interval", d.Watcher.PollInterval)
	v.SetDefault("watcher.cycle_timeout", d.Watcher.CycleTimeout)
	v.SetDefault("watcher.lookback_blocks", d.Watcher.LookbackBlocks)
	v.SetDefault("watcher.required_confirmations", d.Watcher.RequiredConfirmations)
	v.SetDefault("watcher.address_seed", d.Watcher.AddressSeed)
	v.SetDefault("watcher.lease_ttl", d.Watcher.LeaseTTL)

	v.SetDefault("outbox.poll_interval", d.Outbox.PollInterval)
	v.SetDefault("outbox.batch_size", d.Outbox.BatchSize)
	v.SetDefault("outbox.max_attempts", d.Outbox.MaxAttempts)

	v.SetDefault("telemetry.tracing", d.Telemetry.Tracing)
	v.SetDefault("telemetry.metrics", d.Telemetry.Metrics)
}

// decimalHookFunc decodes strings and numbers into decimal.Decimal.
func decimalHookFunc() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case decimal.Decimal:
			return v, nil
		case string:
			if strings.TrimSpace(v) == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return nil, fmt.Errorf("cannot decode %T into decimal", data)
	}
}
