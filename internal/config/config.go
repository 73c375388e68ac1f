package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"depth-watch/internal/logging"
	"depth-watch/internal/registry"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Oracle       OracleConfig       `mapstructure:"oracle"`
	Search       SearchConfig       `mapstructure:"search"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs measurement cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// OracleConfig captures quote venue connectivity.
type OracleConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	QuoteInterval  time.Duration `mapstructure:"quote_interval"`
}

// SearchConfig tunes the depth search policy.
type SearchConfig struct {
	TargetSlippage  float64 `mapstructure:"target_slippage"`
	Tolerance       float64 `mapstructure:"tolerance"`
	MaxIterations   int     `mapstructure:"max_iterations"`
	MinAmountUSD    float64 `mapstructure:"min_amount_usd"`
	MaxAmountUSD    float64 `mapstructure:"max_amount_usd"`
	RangeFactorLow  float64 `mapstructure:"range_factor_low"`
	RangeFactorHigh float64 `mapstructure:"range_factor_high"`
	CollapseWidth   int64   `mapstructure:"collapse_width"`
}

// OrchestratorConfig governs per-asset cycle behaviour.
type OrchestratorConfig struct {
	Freshness time.Duration `mapstructure:"freshness"`
	// PersistDegraded appends records even when one or both directions
	// degraded to zero depth.
	PersistDegraded bool `mapstructure:"persist_degraded"`
}

// RegistryConfig optionally overrides the built-in asset set.
type RegistryConfig struct {
	Tokens    []TokenConfig `mapstructure:"tokens"`
	Reference TokenConfig   `mapstructure:"reference"`
}

// TokenConfig describes one asset override entry.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEPTHWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "depthwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x64707468))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("oracle.base_url", "https://starknet.api.avnu.fi")
	v.SetDefault("oracle.request_timeout", "30s")
	v.SetDefault("oracle.user_agent", "depthwatch/1.0")
	v.SetDefault("oracle.quote_interval", "1s")

	v.SetDefault("search.target_slippage", 0.02)
	v.SetDefault("search.tolerance", 0.001)
	v.SetDefault("search.max_iterations", 20)
	v.SetDefault("search.min_amount_usd", 10000.0)
	v.SetDefault("search.max_amount_usd", 500000000.0)
	v.SetDefault("search.range_factor_low", 0.5)
	v.SetDefault("search.range_factor_high", 2.0)
	v.SetDefault("search.collapse_width", int64(10))

	v.SetDefault("orchestrator.freshness", "5m")
	v.SetDefault("orchestrator.persist_degraded", false)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Search.TargetSlippage <= 0 || c.Search.TargetSlippage >= 1 {
		return fmt.Errorf("search.target_slippage must be in (0, 1)")
	}
	if c.Search.Tolerance <= 0 {
		return fmt.Errorf("search.tolerance must be greater than zero")
	}
	if c.Search.MaxIterations <= 0 {
		return fmt.Errorf("search.max_iterations must be greater than zero")
	}
	if c.Search.MinAmountUSD <= 0 || c.Search.MaxAmountUSD <= c.Search.MinAmountUSD {
		return fmt.Errorf("search notional bounds must satisfy 0 < min < max")
	}
	if c.Search.RangeFactorLow <= 0 || c.Search.RangeFactorHigh < c.Search.RangeFactorLow {
		return fmt.Errorf("search range factors must satisfy 0 < low <= high")
	}
	if c.Orchestrator.Freshness < 0 {
		return fmt.Errorf("orchestrator.freshness cannot be negative")
	}
	return nil
}

// BuildRegistry resolves the asset registry: config overrides when present,
// otherwise the built-in default set.
func (c *Config) BuildRegistry() (registry.Registry, error) {
	if len(c.Registry.Tokens) == 0 {
		return registry.Default(), nil
	}

	assets := make([]registry.AssetDescriptor, 0, len(c.Registry.Tokens))
	for _, t := range c.Registry.Tokens {
		assets = append(assets, registry.AssetDescriptor{
			Symbol:   t.Symbol,
			Address:  t.Address,
			Decimals: t.Decimals,
		})
	}

	reference := registry.Default().Reference
	if c.Registry.Reference.Symbol != "" {
		reference = registry.AssetDescriptor{
			Symbol:   c.Registry.Reference.Symbol,
			Address:  c.Registry.Reference.Address,
			Decimals: c.Registry.Reference.Decimals,
		}
	}

	return registry.New(assets, reference)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
