// Package config defines the engine configuration and its validation.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and are then
// optionally overridden by SENTINEL_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Proposal ProposalConfig `toml:"proposal"`
	Signal   SignalConfig   `toml:"signal"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StorageConfig selects where positions, proposals and audit entries live.
// With "sqlite" the ledger stays in memory; proposals and audit go to the file.
type StorageConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// RedisConfig enables the open-position cache in front of Postgres.
type RedisConfig struct {
	URL string   `toml:"url"`
	TTL duration `toml:"ttl"`
}

// KalshiConfig holds exchange API access. Market data is public, so the key
// is optional.
type KalshiConfig struct {
	Enabled           bool    `toml:"enabled"`
	BaseURL           string  `toml:"base_url"`
	APIKeyID          string  `toml:"api_key_id"`
	PrivateKeyPath    string  `toml:"private_key_path"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	Concurrency       int     `toml:"concurrency"`
}

// ProposalConfig sets the default sizing policy and concentration limits.
// Zero limits are disabled.
type ProposalConfig struct {
	Sizing               string `toml:"sizing"`
	ContractsPerTrade    int64  `toml:"contracts_per_trade"`
	MaxContractsPerTrade int64  `toml:"max_contracts_per_trade"`
	MarketMaxLossCents   int64  `toml:"market_max_loss_cents"`
	SeriesMaxLossCents   int64  `toml:"series_max_loss_cents"`
}

// SignalConfig picks the candidate source. A candidates file wins over the
// Kalshi universe scan.
type SignalConfig struct {
	CandidatesFile string   `toml:"candidates_file"`
	TickerPrefixes []string `toml:"ticker_prefixes"`
	Keywords       []string `toml:"keywords"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// duration wraps time.Duration so TOML can hold strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs fully in memory.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver:     "memory",
			SQLitePath: "sentinel.db",
		},
		Redis: RedisConfig{
			TTL: duration{30 * time.Second},
		},
		Kalshi: KalshiConfig{
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			RequestsPerSecond: 10,
			Burst:             10,
			Concurrency:       4,
		},
		Proposal: ProposalConfig{
			Sizing:            "greedy",
			ContractsPerTrade: 1,
		},
		LogLevel: "info",
	}
}

var validDrivers = map[string]bool{"memory": true, "sqlite": true, "postgres": true}

var validSizing = map[string]bool{"greedy": true, "fixed": true, "equal_split": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	driver := strings.ToLower(c.Storage.Driver)
	switch {
	case !validDrivers[driver]:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: memory, sqlite, postgres)", c.Storage.Driver))
	case driver == "sqlite" && c.Storage.SQLitePath == "":
		errs = append(errs, "storage: sqlite_path is required for the sqlite driver")
	case driver == "postgres" && c.Storage.PostgresDSN == "":
		errs = append(errs, "storage: postgres_dsn is required for the postgres driver")
	}
	if c.Redis.URL != "" && driver != "postgres" {
		errs = append(errs, "redis: the position cache needs the postgres driver")
	}
	if c.Redis.TTL.Duration < 0 {
		errs = append(errs, "redis: ttl must not be negative")
	}

	if c.Kalshi.Enabled {
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url is required when enabled")
		}
		if c.Kalshi.RequestsPerSecond <= 0 || c.Kalshi.Burst < 1 {
			errs = append(errs, "kalshi: requests_per_second and burst must be positive")
		}
		if c.Kalshi.Concurrency < 1 {
			errs = append(errs, "kalshi: concurrency must be at least 1")
		}
	}
	if (c.Kalshi.APIKeyID == "") != (c.Kalshi.PrivateKeyPath == "") {
		errs = append(errs, "kalshi: api_key_id and private_key_path must be set together")
	}

	if !validSizing[strings.ToLower(c.Proposal.Sizing)] {
		errs = append(errs, fmt.Sprintf("proposal: unknown sizing %q (valid: greedy, fixed, equal_split)", c.Proposal.Sizing))
	}
	if c.Proposal.ContractsPerTrade < 0 || c.Proposal.MaxContractsPerTrade < 0 {
		errs = append(errs, "proposal: contract counts must not be negative")
	}
	if strings.EqualFold(c.Proposal.Sizing, "fixed") && c.Proposal.ContractsPerTrade < 1 {
		errs = append(errs, "proposal: fixed sizing needs contracts_per_trade >= 1")
	}
	if c.Proposal.MarketMaxLossCents < 0 || c.Proposal.SeriesMaxLossCents < 0 {
		errs = append(errs, "proposal: loss limits must not be negative")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
