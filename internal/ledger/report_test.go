package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/sentinel/internal/ledger"
	"github.com/atmx/sentinel/internal/model"
)

func fillAt(ts time.Time, ticker string, qty, price, realized int64) model.FillRecord {
	return model.FillRecord{
		ID: ts.Format(time.RFC3339Nano), TS: ts, Ticker: ticker, Side: model.SideYes,
		QtyDelta: qty, PriceCents: price, RealizedPnLCents: realized,
	}
}

func TestSummarize_TotalsTickersAndDays(t *testing.T) {
	day1 := time.Date(2026, 10, 16, 22, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	fills := []model.FillRecord{
		fillAt(day1.Add(-48*time.Hour), "OLD", 5, 50, 0), // before window
		fillAt(day1, "A", 10, 40, 0),
		fillAt(day1.Add(time.Hour), "B", 2, 30, 0),
		fillAt(day2, "A", -4, 55, 60),
		fillAt(day2.Add(time.Minute), "A", -6, 0, -240),
	}

	perf := ledger.Summarize(fills, day1.Add(-time.Hour), day2.Add(time.Hour))

	assert.Equal(t, 4, perf.Fills)
	assert.Equal(t, 2, perf.Buys)
	assert.Equal(t, 2, perf.Sells)
	assert.Equal(t, int64(460), perf.BoughtCents)
	assert.Equal(t, int64(220), perf.SoldCents)
	assert.Equal(t, int64(-240), perf.NetCashflowCents)
	assert.Equal(t, int64(-180), perf.RealizedPnLCents)

	require.Len(t, perf.ByTicker, 2)
	assert.Equal(t, "A", perf.ByTicker[0].Ticker)
	assert.Equal(t, int64(-180), perf.ByTicker[0].NetCashflowCents)
	assert.Equal(t, int64(-180), perf.ByTicker[0].RealizedPnLCents)
	assert.Equal(t, 3, perf.ByTicker[0].Fills)
	assert.Equal(t, "B", perf.ByTicker[1].Ticker)

	require.Len(t, perf.ByDay, 2)
	assert.Equal(t, "2026-10-16", perf.ByDay[0].Date)
	assert.Equal(t, 2, perf.ByDay[0].Buys)
	assert.Equal(t, int64(0), perf.ByDay[0].RealizedPnLCents)
	assert.Equal(t, "2026-10-17", perf.ByDay[1].Date)
	assert.Equal(t, 2, perf.ByDay[1].Sells)
	assert.Equal(t, int64(-180), perf.ByDay[1].RealizedPnLCents)
}

func TestSummarize_EmptyHasNonNilBreakdowns(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	perf := ledger.Summarize(nil, now.Add(-time.Hour), now)

	assert.Zero(t, perf.Fills)
	assert.NotNil(t, perf.ByTicker)
	assert.NotNil(t, perf.ByDay)
}

func TestSummarize_CapsTickerBreakdown(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	var fills []model.FillRecord
	for i := 0; i < 60; i++ {
		fills = append(fills, fillAt(now, fmt.Sprintf("T%02d", i), int64(1+i), 10, 0))
	}

	perf := ledger.Summarize(fills, now, now)
	require.Len(t, perf.ByTicker, 50)
	assert.Equal(t, "T59", perf.ByTicker[0].Ticker)
	assert.Equal(t, 60, perf.Fills)
}

func TestPerformance_RealizedFromAppliedFills(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLedger(t)

	start := time.Now().UTC().Add(-time.Minute)
	for _, f := range []model.Fill{
		{Ticker: "A", Side: model.SideYes, QtyDelta: 10, PriceCents: 40},
		{Ticker: "A", Side: model.SideYes, QtyDelta: -3, PriceCents: 60},
		{Ticker: "A", Side: model.SideYes, QtyDelta: -30, PriceCents: 60}, // rejected
		{Ticker: "B", Side: model.SideNo, QtyDelta: 4, PriceCents: 25},
		{Ticker: "B", Side: model.SideNo, QtyDelta: -4, PriceCents: 100},
	} {
		_, _ = svc.ApplyFill(ctx, f)
	}

	perf, err := svc.Performance(ctx, start, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, perf.Fills)
	assert.Equal(t, int64(60+300), perf.RealizedPnLCents)
	assert.Equal(t, int64(400+100), perf.BoughtCents)
	assert.Equal(t, int64(180+400), perf.SoldCents)
}

func TestPerformance_RejectsInvertedWindow(t *testing.T) {
	svc, _ := newLedger(t)
	now := time.Now().UTC()

	_, err := svc.Performance(context.Background(), now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, model.ErrValidation)
}
