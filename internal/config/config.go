package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Market   MarketConfig   `mapstructure:"market"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MarketConfig holds market engine configuration
type MarketConfig struct {
	CatalogPath   string        `mapstructure:"catalog_path"` // Empty selects the built-in catalog
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	RouteInterval time.Duration `mapstructure:"route_interval"`
	Seed          int64         `mapstructure:"seed"` // 0 seeds from the clock
	AutoSave      bool          `mapstructure:"autosave"`
}

// LedgerConfig holds the player's starting balance and storage limits
type LedgerConfig struct {
	StartingGold      float64            `mapstructure:"starting_gold"`
	DefaultStorageCap float64            `mapstructure:"default_storage_cap"` // 0 means unlimited
	StorageCaps       map[string]float64 `mapstructure:"storage_caps"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// JournalConfig holds trade journal configuration
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken          string        `mapstructure:"bot_token"`
	ChatID            string        `mapstructure:"chat_id"`
	Enabled           bool          `mapstructure:"enabled"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. IMPERIUM_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("IMPERIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Market defaults
	v.SetDefault("market.catalog_path", "")
	v.SetDefault("market.tick_interval", "1h")
	v.SetDefault("market.check_interval", "1m")
	v.SetDefault("market.route_interval", "5m")
	v.SetDefault("market.seed", 0)
	v.SetDefault("market.autosave", true)

	// Ledger defaults
	v.SetDefault("ledger.starting_gold", 10000)
	v.SetDefault("ledger.default_storage_cap", 0)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/imperium.db")

	// Journal defaults
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.dir", "./data/journal")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.messages_per_second", 1.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Market config
	if c.Market.TickInterval < 1*time.Minute {
		return fmt.Errorf("market.tick_interval must be at least 1 minute")
	}
	if c.Market.CheckInterval < 1*time.Second {
		return fmt.Errorf("market.check_interval must be at least 1 second")
	}
	if c.Market.CheckInterval > c.Market.TickInterval {
		return fmt.Errorf("market.check_interval must not exceed market.tick_interval")
	}
	if c.Market.RouteInterval < 1*time.Second {
		return fmt.Errorf("market.route_interval must be at least 1 second")
	}

	// Validate Ledger config
	if c.Ledger.StartingGold < 0 {
		return fmt.Errorf("ledger.starting_gold must not be negative")
	}
	if c.Ledger.DefaultStorageCap < 0 {
		return fmt.Errorf("ledger.default_storage_cap must not be negative")
	}
	for resource, limit := range c.Ledger.StorageCaps {
		if limit < 0 {
			return fmt.Errorf("ledger.storage_caps.%s must not be negative", resource)
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Journal config
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required when the journal is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
		if c.Telegram.MessagesPerSecond <= 0 {
			return fmt.Errorf("telegram.messages_per_second must be positive")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
