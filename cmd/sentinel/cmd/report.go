package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/sentinel/internal/app"
	"github.com/atmx/sentinel/internal/ledger"
	"github.com/atmx/sentinel/internal/scenario"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize realized P&L for a scenario's fills",
	Long: `Replay the scenario's positions and fills into an in-memory ledger and print
the performance report: cash in and out, realized P&L per ticker and per day.

Example:
  sentinel report -f book.yaml`,
	RunE: runReport,
}

var (
	reportFile string
	reportJSON bool
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportFile, "file", "f", "", "scenario YAML file (required)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	reportCmd.MarkFlagRequired("file")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sc, err := scenario.Load(reportFile)
	if err != nil {
		return err
	}
	a, err := app.NewWithStores(appConfig, memoryStores(), app.Sources{}, nil)
	if err != nil {
		return err
	}
	if err := sc.Apply(ctx, a.Ledger); err != nil {
		return err
	}

	perf, err := a.Ledger.Performance(ctx, time.Time{}, time.Now().UTC())
	if err != nil {
		return err
	}
	if reportJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(perf)
	}
	printPerformance(cmd.OutOrStdout(), perf)
	return nil
}

func printPerformance(out io.Writer, p *ledger.Performance) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "TICKER\tFILLS\tBOUGHT\tSOLD\tNET\tREALIZED\t")
	for _, t := range p.ByTicker {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t\n", t.Ticker, t.Fills,
			dollars(t.BoughtCents), dollars(t.SoldCents), dollars(t.NetCashflowCents), dollars(t.RealizedPnLCents))
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d fills (%d buys, %d sells)  net cashflow %s  realized %s\n",
		p.Fills, p.Buys, p.Sells, dollars(p.NetCashflowCents), dollars(p.RealizedPnLCents))
}
