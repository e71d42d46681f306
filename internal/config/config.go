package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"quote-oracle/internal/logging"
	"quote-oracle/internal/oracle"
)

// Feed source kinds.
const (
	FeedSourceChain = "chain"
	FeedSourceFile  = "file"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
	API       APIConfig       `mapstructure:"api"`
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
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// SchedulerConfig governs how often reports are produced.
type SchedulerConfig struct {
	EveryBlocks     uint64        `mapstructure:"every_blocks"`
	AlignToBlocks   bool          `mapstructure:"align_to_blocks"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EthereumConfig covers on-chain feed access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	FeedAddress    string        `mapstructure:"feed_address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FeedConfig picks where quotes come from.
type FeedConfig struct {
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
}

// OracleConfig holds the default window and statistic parameters.
type OracleConfig struct {
	MaxBlocksBack uint64 `mapstructure:"max_blocks_back"`
	MaxQuotes     uint64 `mapstructure:"max_quotes"`
	Percentile    int    `mapstructure:"percentile"`
	DivisorPolicy string `mapstructure:"divisor_policy"`
	Decimals      int32  `mapstructure:"decimals"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// APIConfig controls the read-only HTTP API.
type APIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Listen      string        `mapstructure:"listen"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// Load builds configuration from file, environment, and defaults.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("QUOTEORACLE")
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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quoteoracle")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)

	v.SetDefault("scheduler.every_blocks", uint64(10))
	v.SetDefault("scheduler.align_to_blocks", true)
	v.SetDefault("scheduler.poll_interval", "12s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x71756f74))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("feed.source", FeedSourceChain)

	v.SetDefault("oracle.max_blocks_back", uint64(50))
	v.SetDefault("oracle.max_quotes", uint64(20))
	v.SetDefault("oracle.percentile", 50)
	v.SetDefault("oracle.divisor_policy", string(oracle.DefaultDivisorPolicy))
	v.SetDefault("oracle.decimals", int32(0))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 1.0)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", ":8080")
	v.SetDefault("api.read_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)
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
	if c.Scheduler.EveryBlocks == 0 {
		return fmt.Errorf("scheduler.every_blocks must be greater than zero")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be greater than zero")
	}
	if c.Oracle.MaxBlocksBack == 0 {
		return fmt.Errorf("oracle.max_blocks_back must be greater than zero")
	}
	if c.Oracle.MaxQuotes == 0 {
		return fmt.Errorf("oracle.max_quotes must be greater than zero")
	}
	if c.Oracle.Percentile < 0 || c.Oracle.Percentile > 100 {
		return fmt.Errorf("oracle.percentile must be within [0,100]")
	}
	if c.Oracle.Decimals < 0 {
		return fmt.Errorf("oracle.decimals cannot be negative")
	}
	if _, err := oracle.ParseDivisorPolicy(c.Oracle.DivisorPolicy); err != nil {
		return fmt.Errorf("oracle.divisor_policy: %w", err)
	}
	switch c.Feed.Source {
	case FeedSourceChain:
	case FeedSourceFile:
		if c.Feed.File == "" {
			return fmt.Errorf("feed.file is required when feed.source is %q", FeedSourceFile)
		}
	default:
		return fmt.Errorf("feed.source must be %q or %q", FeedSourceChain, FeedSourceFile)
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen is required when api.enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// DivisorPolicy returns the parsed divisor policy. Validate has already vetted it.
func (c *Config) DivisorPolicy() oracle.DivisorPolicy {
	policy, err := oracle.ParseDivisorPolicy(c.Oracle.DivisorPolicy)
	if err != nil {
		return oracle.DefaultDivisorPolicy
	}
	return policy
}
