package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atmx/sentinel/internal/app"
	"github.com/atmx/sentinel/internal/proposal"
	"github.com/atmx/sentinel/internal/scenario"
	"github.com/atmx/sentinel/internal/store"
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Run a paper proposal pass",
	Long: `Allocate a budget over ranked candidates and record the resulting paper
trades. Candidates come from the scenario file, or from the live Kalshi market
scan when no file is given and [kalshi] is enabled in the config.

Examples:
  sentinel propose -f book.yaml --budget 10 --max-trades 3
  sentinel propose -f book.yaml --sizing fixed --contracts 2 --db sentinel.db
  sentinel propose --hours 12 --prefix KXBTC`,
	RunE: runPropose,
}

var (
	proposeFile      string
	proposeHours     float64
	proposeBudget    string
	proposeMaxTrades int
	proposeSizing    string
	proposeContracts int64
	proposePrefixes  []string
	proposeDB        string
	proposeJSON      bool
)

func init() {
	rootCmd.AddCommand(proposeCmd)
	f := proposeCmd.Flags()
	f.StringVarP(&proposeFile, "file", "f", "", "scenario YAML file")
	f.Float64Var(&proposeHours, "hours", 24, "only markets closing within this many hours")
	f.StringVar(&proposeBudget, "budget", "10", "budget in dollars")
	f.IntVar(&proposeMaxTrades, "max-trades", 3, "maximum trades in the run")
	f.StringVar(&proposeSizing, "sizing", "", "sizing policy: greedy, fixed, equal_split (default from config)")
	f.Int64Var(&proposeContracts, "contracts", 0, "contracts per trade for fixed sizing")
	f.StringSliceVar(&proposePrefixes, "prefix", nil, "ticker prefixes to keep (repeatable)")
	f.StringVar(&proposeDB, "db", "", "SQLite file to record proposals and audit entries")
	f.BoolVar(&proposeJSON, "json", false, "print the result as JSON")
}

func runPropose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	budget, err := decimal.NewFromString(proposeBudget)
	if err != nil {
		return fmt.Errorf("--budget: %w", err)
	}
	budgetCents, err := proposal.DollarsToCents(budget)
	if err != nil {
		return err
	}

	stores := memoryStores()
	if proposeDB != "" {
		sq, err := store.NewSQLiteStore(proposeDB)
		if err != nil {
			return err
		}
		defer sq.Close()
		stores.Proposals, stores.Audit = sq, sq
	}

	var src app.Sources
	var sc *scenario.Scenario
	if proposeFile != "" {
		if sc, err = scenario.Load(proposeFile); err != nil {
			return err
		}
		src.Quotes = sc.QuoteSource()
		if src.Signals, err = sc.SignalSource(); err != nil {
			return err
		}
	} else if !appConfig.Kalshi.Enabled && appConfig.Signal.CandidatesFile == "" {
		return fmt.Errorf("no candidates: pass -f or enable [kalshi] in %s", configPath)
	}

	a, err := app.NewWithStores(appConfig, stores, src, nil)
	if err != nil {
		return err
	}
	if sc != nil {
		if err := sc.Apply(ctx, a.Ledger); err != nil {
			return err
		}
	}

	req := proposal.Request{
		HorizonHours:   proposeHours,
		BudgetCents:    budgetCents,
		MaxTrades:      proposeMaxTrades,
		TickerPrefixes: proposePrefixes,
	}
	if proposeSizing != "" || proposeContracts > 0 {
		sz := a.Proposals.Sizing()
		if proposeSizing != "" {
			if sz.Policy, err = proposal.ParsePolicy(proposeSizing); err != nil {
				return err
			}
		}
		if proposeContracts > 0 {
			sz.ContractsPerTrade = proposeContracts
		}
		req.Sizing = &sz
	}

	res, err := a.Proposals.Run(ctx, req, a.Signals)
	if err != nil {
		return err
	}
	if proposeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(out io.Writer, res *proposal.Result) {
	fmt.Fprintf(out, "run %s (%s)\n\n", res.RunID, res.Sizing)
	if len(res.Proposed) == 0 {
		fmt.Fprintln(out, "no trades proposed")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTICKER\tSIDE\tLIMIT\tCONTRACTS\tMAX LOSS\tRATIONALE")
		for _, t := range res.Proposed {
			fmt.Fprintf(w, "%s\t%s\t%s\t%dc\t%d\t%s\t%s\n",
				t.ID, t.Ticker, t.Side, t.LimitPriceCents, t.Contracts, dollars(t.EstimatedMaxLossCents), t.Rationale)
		}
		w.Flush()
	}
	fmt.Fprintf(out, "\nbudget %s  committed %s  unallocated %s  (%d candidates, %d eligible, %d invalid)\n",
		dollars(res.BudgetCents), dollars(res.CommittedCents), dollars(res.UnallocatedCents),
		res.CandidatesConsidered, res.CandidatesEligible, res.CandidatesInvalid)
}
