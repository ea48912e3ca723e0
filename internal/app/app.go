// Package app assembles the engine components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/sentinel/internal/api"
	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/config"
	"github.com/atmx/sentinel/internal/correlation"
	"github.com/atmx/sentinel/internal/ledger"
	"github.com/atmx/sentinel/internal/notify"
	"github.com/atmx/sentinel/internal/platform/kalshi"
	"github.com/atmx/sentinel/internal/proposal"
	"github.com/atmx/sentinel/internal/quote"
	"github.com/atmx/sentinel/internal/signal"
	"github.com/atmx/sentinel/internal/store"
	"github.com/atmx/sentinel/internal/valuation"
)

// App holds the wired components.
type App struct {
	Hub       *api.Hub
	Audit     *audit.Recorder
	Ledger    *ledger.Service
	Valuation *valuation.Calculator
	Proposals *proposal.Engine
	Signals   signal.Source
	Service   *api.Service

	cleanup []func()
}

// Stores groups the three persistence roles. One backend may fill several.
type Stores struct {
	Ledger    store.Ledger
	Proposals store.ProposalStore
	Audit     store.AuditStore
}

// Sources overrides where quotes and candidates come from. Nil fields fall
// back to the configured sources.
type Sources struct {
	Quotes  quote.Source
	Signals signal.Source
}

// New builds the application. Callers must Close it.
func New(ctx context.Context, cfg *config.Config, src Sources, logger *slog.Logger) (*App, error) {
	a := &App{}
	stores, err := a.openStores(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(cfg, stores, src, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStores builds the application on caller-supplied stores.
func NewWithStores(cfg *config.Config, stores Stores, src Sources, logger *slog.Logger) (*App, error) {
	a := &App{}
	if err := a.wire(cfg, stores, src, logger); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases store connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (Stores, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return Stores{}, fmt.Errorf("database connection failed: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return Stores{}, fmt.Errorf("database migration failed: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		var ledgerStore store.Ledger = pg
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return Stores{}, fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			a.cleanup = append(a.cleanup, func() { rdb.Close() })
			ledgerStore = store.NewCachedLedger(pg, rdb, cfg.Redis.TTL.Duration)
			slog.Info("Redis position cache enabled", "ttl", cfg.Redis.TTL.Duration)
		}
		return Stores{Ledger: ledgerStore, Proposals: pg, Audit: pg}, nil

	case "sqlite":
		sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return Stores{}, err
		}
		a.cleanup = append(a.cleanup, func() { sq.Close() })
		slog.Warn("ledger is in memory; proposals and audit persist to SQLite", "path", cfg.Storage.SQLitePath)
		return Stores{Ledger: store.NewMemoryStore(), Proposals: sq, Audit: sq}, nil

	default:
		slog.Warn("using in-memory store (data will not persist)")
		ms := store.NewMemoryStore()
		return Stores{Ledger: ms, Proposals: ms, Audit: ms}, nil
	}
}

func (a *App) wire(cfg *config.Config, stores Stores, src Sources, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	sizing, err := SizingFrom(cfg.Proposal)
	if err != nil {
		return err
	}

	var client *kalshi.Client
	if cfg.Kalshi.Enabled && (src.Quotes == nil || src.Signals == nil) {
		if client, err = KalshiClient(cfg.Kalshi); err != nil {
			return err
		}
	}

	a.Hub = api.NewHub(cfg.Server.CORSOrigins)
	a.Audit = audit.NewRecorder(stores.Audit, a.Hub, logger)
	a.Ledger = ledger.NewService(stores.Ledger, a.Audit)

	quotes := src.Quotes
	switch {
	case quotes != nil:
	case client != nil:
		quotes = quote.NewOrderbook(client, cfg.Kalshi.Concurrency, logger)
	default:
		quotes = quote.NewStatic(nil)
	}
	a.Valuation = valuation.NewCalculator(a.Ledger, quotes, a.Audit)

	signals := src.Signals
	switch {
	case signals != nil:
	case cfg.Signal.CandidatesFile != "":
		if signals, err = signal.LoadFile(cfg.Signal.CandidatesFile); err != nil {
			return err
		}
	case client != nil:
		signals = signal.NewUniverse(client, cfg.Signal.Keywords, logger)
	default:
		signals = signal.NewStatic(nil)
	}
	a.Signals = signal.WithPrefixes(signals, cfg.Signal.TickerPrefixes)

	opts := []proposal.Option{proposal.WithSizing(sizing)}
	limiter := correlation.NewPositionLimiter(cfg.Proposal.MarketMaxLossCents, cfg.Proposal.SeriesMaxLossCents)
	if limiter.Enabled() {
		opts = append(opts, proposal.WithLimiter(limiter, a.Ledger))
	}
	if n := NotifierFrom(cfg.Notify, logger); n.Enabled() {
		opts = append(opts, proposal.WithNotifier(n))
	}
	a.Proposals = proposal.NewEngine(stores.Proposals, a.Audit, opts...)

	a.Service = api.NewService(a.Ledger, a.Valuation, a.Proposals, a.Signals, a.Audit)
	return nil
}

// SizingFrom converts the configured policy.
func SizingFrom(pc config.ProposalConfig) (proposal.Sizing, error) {
	policy, err := proposal.ParsePolicy(pc.Sizing)
	if err != nil {
		return proposal.Sizing{}, err
	}
	s := proposal.Sizing{
		Policy:               policy,
		ContractsPerTrade:    pc.ContractsPerTrade,
		MaxContractsPerTrade: pc.MaxContractsPerTrade,
	}
	return s, s.Validate()
}

// KalshiClient builds an exchange client, signing requests when a key is
// configured.
func KalshiClient(kc config.KalshiConfig) (*kalshi.Client, error) {
	opts := []kalshi.Option{kalshi.WithRateLimit(kc.RequestsPerSecond, kc.Burst)}
	if kc.PrivateKeyPath != "" {
		key, err := kalshi.LoadPrivateKey(kc.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kalshi.WithCredentials(kc.APIKeyID, key))
	}
	return kalshi.NewClient(kc.BaseURL, opts...)
}

// NotifierFrom returns a notifier over every configured channel.
func NotifierFrom(nc config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if nc.TelegramToken != "" && nc.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(nc.TelegramToken, nc.TelegramChatID))
	}
	if nc.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(nc.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, logger)
}
