package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atmx/sentinel/internal/app"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/scenario"
	"github.com/atmx/sentinel/internal/store"
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Mark a scenario's positions to market",
	Long: `Replay the scenario's positions and fills into an in-memory ledger and value
them against the scenario's quotes. Rows without an exit bid are shown as
unknown and left out of the totals.

Example:
  sentinel value -f book.yaml`,
	RunE: runValue,
}

var (
	valueFile string
	valueJSON bool
)

func init() {
	rootCmd.AddCommand(valueCmd)
	valueCmd.Flags().StringVarP(&valueFile, "file", "f", "", "scenario YAML file (required)")
	valueCmd.Flags().BoolVar(&valueJSON, "json", false, "print the snapshot as JSON")
	valueCmd.MarkFlagRequired("file")
}

func runValue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sc, err := scenario.Load(valueFile)
	if err != nil {
		return err
	}
	a, err := app.NewWithStores(appConfig, memoryStores(), app.Sources{Quotes: sc.QuoteSource()}, nil)
	if err != nil {
		return err
	}
	if err := sc.Apply(ctx, a.Ledger); err != nil {
		return err
	}

	v, err := a.Valuation.Snapshot(ctx)
	if err != nil {
		return err
	}
	if valueJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	printValuation(cmd.OutOrStdout(), v)
	return nil
}

func memoryStores() app.Stores {
	ms := store.NewMemoryStore()
	return app.Stores{Ledger: ms, Proposals: ms, Audit: ms}
}

func printValuation(out io.Writer, v *model.Valuation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "TICKER\tSIDE\tQTY\tAVG\tCOST\tBID\tASK\tLIQ\tPNL\t")
	for _, r := range v.Rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Ticker, r.Side, r.Quantity, r.AvgEntryCents, dollars(r.CostBasisCents),
			cents(r.BestExitBid), cents(r.ImpliedExitAsk), optDollars(r.LiqValueCents), optDollars(r.UnrealPnLCents))
	}
	w.Flush()

	fmt.Fprintf(out, "\ncost %s  liquidation %s  unrealized %s",
		dollars(v.Totals.CostBasisCents), dollars(v.Totals.LiqValueCents), dollars(v.Totals.UnrealPnLCents))
	if v.ExcludedRows > 0 {
		fmt.Fprintf(out, "  (%d rows unknown, excluded)", v.ExcludedRows)
	}
	fmt.Fprintln(out, "\napproximate: exits priced at best bid, no depth or slippage")
}

func cents(p *int64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%dc", *p)
}

func optDollars(p *int64) string {
	if p == nil {
		return "unknown"
	}
	return dollars(*p)
}
