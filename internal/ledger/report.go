package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atmx/sentinel/internal/model"
)

// maxReportTickers bounds the per-ticker breakdown.
const maxReportTickers = 50

// TickerPerformance is the activity in one market over a report window.
type TickerPerformance struct {
	Ticker           string `json:"ticker"`
	Fills            int    `json:"fills"`
	BoughtCents      int64  `json:"bought_cents"`
	SoldCents        int64  `json:"sold_cents"`
	NetCashflowCents int64  `json:"net_cashflow_cents"`
	RealizedPnLCents int64  `json:"realized_pnl_cents"`
}

// DailyPerformance is the activity on one UTC day.
type DailyPerformance struct {
	Date             string `json:"date"` // 2006-01-02
	Buys             int    `json:"buys"`
	Sells            int    `json:"sells"`
	BoughtCents      int64  `json:"bought_cents"`
	SoldCents        int64  `json:"sold_cents"`
	RealizedPnLCents int64  `json:"realized_pnl_cents"`
}

// Performance summarizes applied fills between Since and Until.
// NetCashflowCents is SoldCents - BoughtCents and ignores inventory still
// held; pair it with a valuation for the unrealized side.
type Performance struct {
	Since            time.Time           `json:"since"`
	Until            time.Time           `json:"until"`
	Fills            int                 `json:"fills"`
	Buys             int                 `json:"buys"`
	Sells            int                 `json:"sells"`
	BoughtCents      int64               `json:"bought_cents"`
	SoldCents        int64               `json:"sold_cents"`
	NetCashflowCents int64               `json:"net_cashflow_cents"`
	RealizedPnLCents int64               `json:"realized_pnl_cents"`
	ByTicker         []TickerPerformance `json:"by_ticker"`
	ByDay            []DailyPerformance  `json:"by_day"`
}

// Summarize folds fills into a Performance. Fills outside [since, until] are
// ignored. Tickers are ordered by absolute net cashflow, largest first, and
// days ascending.
func Summarize(fills []model.FillRecord, since, until time.Time) Performance {
	perf := Performance{
		Since:    since,
		Until:    until,
		ByTicker: []TickerPerformance{},
		ByDay:    []DailyPerformance{},
	}
	tickers := map[string]*TickerPerformance{}
	days := map[string]*DailyPerformance{}

	for _, f := range fills {
		if f.TS.Before(since) || f.TS.After(until) {
			continue
		}
		qty := f.QtyDelta
		if qty < 0 {
			qty = -qty
		}
		notional := qty * f.PriceCents

		tp := tickers[f.Ticker]
		if tp == nil {
			tp = &TickerPerformance{Ticker: f.Ticker}
			tickers[f.Ticker] = tp
		}
		date := f.TS.UTC().Format(time.DateOnly)
		dp := days[date]
		if dp == nil {
			dp = &DailyPerformance{Date: date}
			days[date] = dp
		}

		perf.Fills++
		tp.Fills++
		if f.QtyDelta > 0 {
			perf.Buys++
			perf.BoughtCents += notional
			tp.BoughtCents += notional
			dp.Buys++
			dp.BoughtCents += notional
		} else {
			perf.Sells++
			perf.SoldCents += notional
			tp.SoldCents += notional
			dp.Sells++
			dp.SoldCents += notional
		}
		perf.RealizedPnLCents += f.RealizedPnLCents
		tp.RealizedPnLCents += f.RealizedPnLCents
		dp.RealizedPnLCents += f.RealizedPnLCents
	}
	perf.NetCashflowCents = perf.SoldCents - perf.BoughtCents

	for _, tp := range tickers {
		tp.NetCashflowCents = tp.SoldCents - tp.BoughtCents
		perf.ByTicker = append(perf.ByTicker, *tp)
	}
	sort.Slice(perf.ByTicker, func(i, j int) bool {
		a, b := abs(perf.ByTicker[i].NetCashflowCents), abs(perf.ByTicker[j].NetCashflowCents)
		if a != b {
			return a > b
		}
		return perf.ByTicker[i].Ticker < perf.ByTicker[j].Ticker
	})
	if len(perf.ByTicker) > maxReportTickers {
		perf.ByTicker = perf.ByTicker[:maxReportTickers]
	}

	for _, dp := range days {
		perf.ByDay = append(perf.ByDay, *dp)
	}
	sort.Slice(perf.ByDay, func(i, j int) bool { return perf.ByDay[i].Date < perf.ByDay[j].Date })
	return perf
}

// Performance reports fills applied between since and until.
func (s *Service) Performance(ctx context.Context, since, until time.Time) (*Performance, error) {
	if until.Before(since) {
		return nil, fmt.Errorf("%w: report window ends before it starts", model.ErrValidation)
	}
	fills, err := s.store.ListFills(ctx, since)
	if err != nil {
		s.audit.Error(ctx, "report", "list fills: %v", err)
		return nil, fmt.Errorf("ledger: list fills: %w", err)
	}
	perf := Summarize(fills, since, until)
	return &perf, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
