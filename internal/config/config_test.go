package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearHostEnv keeps deploy-time variables of the host out of the test.
func clearHostEnv(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "SENTINEL_SERVER_PORT", "SENTINEL_REDIS_TTL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "greedy", cfg.Proposal.Sizing)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearHostEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL.Duration)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log_level = "debug"

[server]
port = 9090

[storage]
driver = "postgres"
postgres_dsn = "postgres://localhost/sentinel"

[redis]
url = "redis://localhost:6379/0"
ttl = "5s"

[proposal]
sizing = "equal_split"
max_contracts_per_trade = 25
series_max_loss_cents = 5000

[signal]
ticker_prefixes = ["KXBTC", "KXETH"]
`)
	clearHostEnv(t)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Redis.TTL.Duration)
	assert.Equal(t, "equal_split", cfg.Proposal.Sizing)
	assert.Equal(t, int64(25), cfg.Proposal.MaxContractsPerTrade)
	assert.Equal(t, int64(1), cfg.Proposal.ContractsPerTrade, "untouched defaults survive")
	assert.Equal(t, []string{"KXBTC", "KXETH"}, cfg.Signal.TickerPrefixes)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearHostEnv(t)
	path := writeFile(t, "[server]\nport = 9090\n")
	t.Setenv("SENTINEL_SERVER_PORT", "7070")
	t.Setenv("SENTINEL_PROPOSAL_SIZING", "fixed")
	t.Setenv("SENTINEL_PROPOSAL_CONTRACTS_PER_TRADE", "3")
	t.Setenv("SENTINEL_SIGNAL_KEYWORDS", " BTC, ,ETH ")
	t.Setenv("SENTINEL_KALSHI_ENABLED", "true")
	t.Setenv("SENTINEL_REDIS_TTL", "not-a-duration")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "fixed", cfg.Proposal.Sizing)
	assert.Equal(t, int64(3), cfg.Proposal.ContractsPerTrade)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Signal.Keywords)
	assert.True(t, cfg.Kalshi.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL.Duration, "unparseable values are ignored")
}

func TestLoad_BadTOML(t *testing.T) {
	_, err := Load(writeFile(t, "[server\nport = 1"))
	assert.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Storage.Driver = "postgres"
	cfg.Redis.URL = "redis://localhost"
	cfg.Proposal.Sizing = "fixed"
	cfg.Proposal.ContractsPerTrade = 0
	cfg.Notify.TelegramToken = "token"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"log_level", "postgres_dsn", "contracts_per_trade", "telegram_chat_id"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RedisNeedsPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.URL = "redis://localhost"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs the postgres driver")
}

func TestLoad_ExampleFileValidates(t *testing.T) {
	clearHostEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "sentinel.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, []string{"BTC", "BITCOIN", "ETH", "ETHEREUM"}, cfg.Signal.Keywords)
}
