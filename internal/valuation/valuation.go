// Package valuation marks open positions to market.
//
// Exits are priced at the best bid on the held side with no depth or
// slippage modelling, so every snapshot is approximate. A position whose
// exit bid is unknown is reported with null money fields and left out of the
// totals; the snapshot says how many rows were excluded.
package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/metrics"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/quote"
)

const component = "valuation"

// Value computes a snapshot of positions against quotes. It is pure.
func Value(positions []model.Position, quotes model.Quotes, now time.Time) model.Valuation {
	v := model.Valuation{
		Rows:        make([]model.ValuationRow, 0, len(positions)),
		Approximate: true,
		AsOf:        now,
	}

	for _, p := range positions {
		row := model.ValuationRow{
			Ticker:         p.Ticker,
			Side:           p.Side,
			Quantity:       p.Quantity,
			AvgEntryCents:  p.AvgEntryCents,
			CostBasisCents: p.CostBasisCents,
		}

		q, ok := quotes[p.Ticker]
		if ok && q.Validate() == nil {
			row.ImpliedExitAsk = q.ImpliedExitAsk(p.Side)
			if bid := q.ExitBid(p.Side); bid != nil {
				liq := p.Quantity * *bid
				pnl := liq - p.CostBasisCents
				row.BestExitBid = model.Cents(*bid)
				row.LiqValueCents = &liq
				row.UnrealPnLCents = &pnl
			}
		}

		if row.Known() {
			v.Totals.CostBasisCents += row.CostBasisCents
			v.Totals.LiqValueCents += *row.LiqValueCents
		} else {
			v.ExcludedRows++
		}
		v.Rows = append(v.Rows, row)
	}

	v.Totals.UnrealPnLCents = v.Totals.LiqValueCents - v.Totals.CostBasisCents
	return v
}

// PositionLister is the read side of the position ledger.
type PositionLister interface {
	ListOpenPositions(ctx context.Context) ([]model.Position, error)
}

// Calculator runs valuation passes over the live ledger.
type Calculator struct {
	positions PositionLister
	quotes    quote.Source
	audit     *audit.Recorder
	now       func() time.Time
}

// NewCalculator creates a calculator reading positions from ledger and
// prices from quotes.
func NewCalculator(ledger PositionLister, quotes quote.Source, rec *audit.Recorder) *Calculator {
	return &Calculator{
		positions: ledger,
		quotes:    quotes,
		audit:     rec,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot lists open positions, refreshes their quotes and values them.
// A failing quote source degrades every row to unknown instead of failing.
func (c *Calculator) Snapshot(ctx context.Context) (*model.Valuation, error) {
	positions, err := c.positions.ListOpenPositions(ctx)
	if err != nil {
		c.audit.Error(ctx, component, "list positions: %v", err)
		return nil, fmt.Errorf("valuation: list positions: %w", err)
	}

	tickers := make([]string, 0, len(positions))
	for _, p := range positions {
		tickers = append(tickers, p.Ticker)
	}

	quotes := model.Quotes{}
	if len(tickers) > 0 {
		quotes, err = c.quotes.Quotes(ctx, tickers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("valuation: quotes: %w", err)
			}
			slog.Warn("quote source failed", "err", err, "positions", len(positions))
			c.audit.Warn(ctx, component, "quote source failed: %v", err)
			quotes = model.Quotes{}
		}
		for t, q := range quotes {
			if err := q.Validate(); err != nil {
				c.audit.Warn(ctx, component, "discarding quote for %s: %v", t, err)
			}
		}
	}

	v := Value(positions, quotes, c.now())

	metrics.ValuationPasses.Inc()
	metrics.OpenPositions.Set(float64(len(positions)))
	metrics.UnrealizedPnL.Set(float64(v.Totals.UnrealPnLCents))

	if v.ExcludedRows > 0 {
		metrics.ValuationExcludedRows.Add(float64(v.ExcludedRows))
		c.audit.Warn(ctx, component, "%v: no exit bid for %s; %d of %d rows excluded from totals",
			model.ErrDataUnavailable, strings.Join(unknownTickers(v.Rows), ","), v.ExcludedRows, len(v.Rows))
	}
	c.audit.Info(ctx, component, "valued %d positions: cost=%dc liq=%dc pnl=%dc",
		len(v.Rows), v.Totals.CostBasisCents, v.Totals.LiqValueCents, v.Totals.UnrealPnLCents)

	return &v, nil
}

func unknownTickers(rows []model.ValuationRow) []string {
	var out []string
	for _, r := range rows {
		if !r.Known() {
			out = append(out, r.Ticker+"/"+string(r.Side))
		}
	}
	return out
}
