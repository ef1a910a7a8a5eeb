package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
feed:
  url: "wss://feed.example.com/v0/stream"
historical:
  base_url: "https://hist.example.com"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.URL != "wss://feed.example.com/v0/stream" {
		t.Errorf("Unexpected feed URL: %q", cfg.Feed.URL)
	}
	if cfg.Feed.Dataset != "equs-mini" {
		t.Errorf("Expected default dataset, got %q", cfg.Feed.Dataset)
	}
	if cfg.Feed.ReconnectDelay != 5*time.Second {
		t.Errorf("Expected default reconnect delay 5s, got %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Scanner.Threshold != 0.03 {
		t.Errorf("Expected default threshold 0.03, got %v", cfg.Scanner.Threshold)
	}
	if cfg.Scanner.DisplayTimezone != "America/New_York" {
		t.Errorf("Expected default display timezone, got %q", cfg.Scanner.DisplayTimezone)
	}
	if !cfg.Storage.Enabled {
		t.Error("Expected storage enabled by default")
	}
	if cfg.Telegram.Enabled {
		t.Error("Expected telegram disabled by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging defaults: %q %q", cfg.Logging.Level, cfg.Logging.Format)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected minimal config to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
feed:
  url: "wss://feed.example.com/v0/stream"
  dataset: "equs-full"
  buffer_size: 4096
historical:
  base_url: "https://hist.example.com"
  api_key: "k-123"
scanner:
  threshold: 0.05
  reference_date: "2025-04-25"
logging:
  level: debug
  format: text
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.Dataset != "equs-full" {
		t.Errorf("Expected dataset override, got %q", cfg.Feed.Dataset)
	}
	if cfg.Feed.BufferSize != 4096 {
		t.Errorf("Expected buffer size 4096, got %d", cfg.Feed.BufferSize)
	}
	if cfg.Scanner.Threshold != 0.05 {
		t.Errorf("Expected threshold 0.05, got %v", cfg.Scanner.Threshold)
	}
	if cfg.Scanner.ReferenceDate != "2025-04-25" {
		t.Errorf("Expected reference date override, got %q", cfg.Scanner.ReferenceDate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected config to validate, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidateFailures(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, minimalConfig))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing feed url", func(c *Config) { c.Feed.URL = "" }},
		{"missing dataset", func(c *Config) { c.Feed.Dataset = "" }},
		{"tiny reconnect delay", func(c *Config) { c.Feed.ReconnectDelay = time.Millisecond }},
		{"zero buffer", func(c *Config) { c.Feed.BufferSize = 0 }},
		{"missing historical url", func(c *Config) { c.Historical.BaseURL = "" }},
		{"zero threshold", func(c *Config) { c.Scanner.Threshold = 0 }},
		{"threshold too large", func(c *Config) { c.Scanner.Threshold = 1.0 }},
		{"bad reference date", func(c *Config) { c.Scanner.ReferenceDate = "04/25/2025" }},
		{"bad timezone", func(c *Config) { c.Scanner.DisplayTimezone = "Mars/Olympus" }},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "42" }},
		{"telegram without chat", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "t" }},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddr = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestReferenceDate(t *testing.T) {
	eastern, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("Failed to load timezone: %v", err)
	}

	cfg := &Config{Scanner: ScannerConfig{ReferenceDate: "2025-04-25"}}
	date, err := cfg.ReferenceDate(eastern)
	if err != nil {
		t.Fatalf("ReferenceDate failed: %v", err)
	}
	want := time.Date(2025, 4, 25, 0, 0, 0, 0, eastern)
	if !date.Equal(want) {
		t.Errorf("Expected %v, got %v", want, date)
	}

	cfg.Scanner.ReferenceDate = ""
	today, err := cfg.ReferenceDate(eastern)
	if err != nil {
		t.Fatalf("ReferenceDate failed: %v", err)
	}
	if today.Hour() != 0 || today.Minute() != 0 {
		t.Errorf("Expected midnight date, got %v", today)
	}
}
