package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atmx/sentinel/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Paper-trading position valuation and proposal engine for event contracts",
	Long: `Sentinel marks binary event-contract positions to the best bid and proposes
budget-constrained paper trades from ranked candidates. Nothing is ever sent
to an exchange.

Offline commands read a YAML scenario file:

  positions:  [{ticker, side, qty, avg_entry_cents}]
  fills:      [{ticker, side, qty_delta, price_cents}]
  quotes:     [{ticker, yes_bid, yes_ask, no_bid, no_ask}]
  candidates: [{ticker, side, limit_price_cents, score, close_time | closes_in}]`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		appConfig = cfg

		opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
		if verbose {
			opts.Level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return nil
	},
}

var (
	configPath string
	verbose    bool
	appConfig  *config.Config
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sentinel.toml", "TOML config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
