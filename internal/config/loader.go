package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over the built-in defaults, loads .env if
// present and applies SENTINEL_* overrides. A missing file is not an error;
// an empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-host settings at
// deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "SENTINEL_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SENTINEL_SERVER_CORS_ORIGINS")

	setStr(&cfg.Storage.Driver, "SENTINEL_STORAGE_DRIVER")
	setStr(&cfg.Storage.SQLitePath, "SENTINEL_STORAGE_SQLITE_PATH")
	setStr(&cfg.Storage.PostgresDSN, "SENTINEL_STORAGE_POSTGRES_DSN")
	setStr(&cfg.Storage.PostgresDSN, "DATABASE_URL")

	setStr(&cfg.Redis.URL, "SENTINEL_REDIS_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setDuration(&cfg.Redis.TTL, "SENTINEL_REDIS_TTL")

	setBool(&cfg.Kalshi.Enabled, "SENTINEL_KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "SENTINEL_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.APIKeyID, "SENTINEL_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPath, "SENTINEL_KALSHI_PRIVATE_KEY_PATH")
	setFloat64(&cfg.Kalshi.RequestsPerSecond, "SENTINEL_KALSHI_REQUESTS_PER_SECOND")
	setInt(&cfg.Kalshi.Burst, "SENTINEL_KALSHI_BURST")
	setInt(&cfg.Kalshi.Concurrency, "SENTINEL_KALSHI_CONCURRENCY")

	setStr(&cfg.Proposal.Sizing, "SENTINEL_PROPOSAL_SIZING")
	setInt64(&cfg.Proposal.ContractsPerTrade, "SENTINEL_PROPOSAL_CONTRACTS_PER_TRADE")
	setInt64(&cfg.Proposal.MaxContractsPerTrade, "SENTINEL_PROPOSAL_MAX_CONTRACTS_PER_TRADE")
	setInt64(&cfg.Proposal.MarketMaxLossCents, "SENTINEL_PROPOSAL_MARKET_MAX_LOSS_CENTS")
	setInt64(&cfg.Proposal.SeriesMaxLossCents, "SENTINEL_PROPOSAL_SERIES_MAX_LOSS_CENTS")

	setStr(&cfg.Signal.CandidatesFile, "SENTINEL_SIGNAL_CANDIDATES_FILE")
	setStringSlice(&cfg.Signal.TickerPrefixes, "SENTINEL_SIGNAL_TICKER_PREFIXES")
	setStringSlice(&cfg.Signal.Keywords, "SENTINEL_SIGNAL_KEYWORDS")

	setStr(&cfg.Notify.TelegramToken, "SENTINEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SENTINEL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SENTINEL_NOTIFY_DISCORD_WEBHOOK_URL")

	setStr(&cfg.LogLevel, "SENTINEL_LOG_LEVEL")
}

// Each helper only mutates the target when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
