package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/sentinel/internal/app"
	"github.com/atmx/sentinel/internal/signal"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Scan open Kalshi markets and print ranked candidates",
	Long: `Fetch open markets closing within the horizon and score them with the
keyword and liquidity heuristics. Read-only; nothing is recorded.

Example:
  sentinel markets --hours 6 --keyword BTC --keyword ETH`,
	RunE: runMarkets,
}

var (
	marketsHours    float64
	marketsKeywords []string
	marketsLimit    int
)

func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.Flags().Float64Var(&marketsHours, "hours", 24, "horizon in hours")
	marketsCmd.Flags().StringSliceVar(&marketsKeywords, "keyword", nil, "keywords to score (default from config)")
	marketsCmd.Flags().IntVar(&marketsLimit, "limit", 25, "rows to print")
}

func runMarkets(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := app.KalshiClient(appConfig.Kalshi)
	if err != nil {
		return err
	}
	keywords := appConfig.Signal.Keywords
	if len(marketsKeywords) > 0 {
		keywords = marketsKeywords
	}
	src := signal.WithPrefixes(signal.NewUniverse(client, keywords, nil), appConfig.Signal.TickerPrefixes)

	cands, err := src.Candidates(ctx, time.Duration(marketsHours*float64(time.Hour)))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tTICKER\tSIDE\tLIMIT\tCLOSES\tRATIONALE")
	for i, c := range cands {
		if i >= marketsLimit {
			break
		}
		fmt.Fprintf(w, "%.2f\t%s\t%s\t%dc\t%s\t%s\n",
			c.Score, c.Ticker, c.Side, c.LimitPriceCents, c.CloseTime.Format(time.RFC3339), c.Rationale)
	}
	return w.Flush()
}
