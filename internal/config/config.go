// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Feed       FeedConfig       `mapstructure:"feed"`
	Historical HistoricalConfig `mapstructure:"historical"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// FeedConfig holds live market-data feed configuration
type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	Dataset        string        `mapstructure:"dataset"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	BufferSize     int           `mapstructure:"buffer_size"`
}

// HistoricalConfig holds the bulk historical-data service configuration
type HistoricalConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// ScannerConfig holds scan behavior configuration
type ScannerConfig struct {
	// Threshold is the minimum relative move (fraction) that fires an alert.
	Threshold float64 `mapstructure:"threshold"`
	// ReferenceDate is the session date (YYYY-MM-DD) whose prior close is
	// the baseline; empty means today.
	ReferenceDate   string `mapstructure:"reference_date"`
	DisplayTimezone string `mapstructure:"display_timezone"`
}

// StorageConfig holds the reference-close cache configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A local
// .env file, when present, is applied to the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("MOVESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Feed defaults
	v.SetDefault("feed.dataset", "equs-mini")
	v.SetDefault("feed.reconnect_delay", "5s")
	v.SetDefault("feed.ping_interval", "20s")
	v.SetDefault("feed.buffer_size", 1024)

	// Historical defaults
	v.SetDefault("historical.timeout", "30s")
	v.SetDefault("historical.max_retries", 3)
	v.SetDefault("historical.retry_delay_base", "1s")

	// Scanner defaults
	v.SetDefault("scanner.threshold", 0.03)
	v.SetDefault("scanner.reference_date", "")
	v.SetDefault("scanner.display_timezone", "America/New_York")

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Feed config
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.Dataset == "" {
		return fmt.Errorf("feed.dataset is required")
	}
	if c.Feed.ReconnectDelay < time.Second {
		return fmt.Errorf("feed.reconnect_delay must be at least 1 second")
	}
	if c.Feed.BufferSize < 1 {
		return fmt.Errorf("feed.buffer_size must be at least 1")
	}

	// Validate Historical config
	if c.Historical.BaseURL == "" {
		return fmt.Errorf("historical.base_url is required")
	}
	if c.Historical.MaxRetries < 1 {
		return fmt.Errorf("historical.max_retries must be at least 1")
	}

	// Validate Scanner config
	if c.Scanner.Threshold <= 0.0 || c.Scanner.Threshold >= 1.0 {
		return fmt.Errorf("scanner.threshold must be between 0.0 and 1.0 exclusive")
	}
	if c.Scanner.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Scanner.ReferenceDate); err != nil {
			return fmt.Errorf("scanner.reference_date must be YYYY-MM-DD: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Scanner.DisplayTimezone); err != nil {
		return fmt.Errorf("scanner.display_timezone is invalid: %w", err)
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
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

// ReferenceDate resolves the configured session date in loc, defaulting to
// the current date when unset.
func (c *Config) ReferenceDate(loc *time.Location) (time.Time, error) {
	if c.Scanner.ReferenceDate == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation("2006-01-02", c.Scanner.ReferenceDate, loc)
}
