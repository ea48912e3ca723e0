package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/ledger"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/store"
	"github.com/atmx/sentinel/internal/valuation"
)

const book = `
positions:
  - ticker: KXBTC-26OCT17-B100
    side: yes
    qty: 10
    avg_entry_cents: 40
fills:
  - ticker: KXBTC-26OCT17-B100
    side: yes
    qty_delta: -4
    price_cents: 55
  - ticker: KXETH-26OCT17-B4
    side: no
    qty_delta: 3
    price_cents: 30
quotes:
  - ticker: KXBTC-26OCT17-B100
    yes_bid: 55
    no_bid: 43
  - ticker: KXETH-26OCT17-B4
    yes_bid: null
candidates:
  - ticker: KXBTC-26OCT17-B101
    side: yes
    limit_price_cents: 50
    closes_in: 6h
`

func TestLoadAndValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.yaml")
	require.NoError(t, os.WriteFile(path, []byte(book), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sc.AllFills(), 3)

	ctx := context.Background()
	ms := store.NewMemoryStore()
	rec := audit.NewRecorder(ms, nil, nil)
	l := ledger.NewService(ms, rec)
	require.NoError(t, sc.Apply(ctx, l))

	v, err := valuation.NewCalculator(l, sc.QuoteSource(), rec).Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, v.Rows, 2)

	// 6 YES at 40c marked at 55c.
	assert.Equal(t, int64(240), v.Totals.CostBasisCents)
	assert.Equal(t, int64(330), v.Totals.LiqValueCents)
	assert.Equal(t, int64(90), v.Totals.UnrealPnLCents)
	assert.Equal(t, 1, v.ExcludedRows, "ETH NO has no bid")

	src, err := sc.SignalSource()
	require.NoError(t, err)
	cands, err := src.Candidates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.False(t, cands[0].CloseTime.IsZero())
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("positons: []\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	sc, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, sc.AllFills())
}

func TestApply_StopsAtFirstRejection(t *testing.T) {
	sc, err := Parse([]byte(`
fills:
  - {ticker: A, side: yes, qty_delta: 2, price_cents: 10}
  - {ticker: A, side: yes, qty_delta: -3, price_cents: 10}
  - {ticker: B, side: yes, qty_delta: 1, price_cents: 10}
`))
	require.NoError(t, err)

	ms := store.NewMemoryStore()
	l := ledger.NewService(ms, audit.NewRecorder(ms, nil, nil))
	err = sc.Apply(context.Background(), l)
	assert.ErrorIs(t, err, model.ErrInvalidFill)

	positions, _ := l.ListOpenPositions(context.Background())
	require.Len(t, positions, 1)
	assert.Equal(t, "A", positions[0].Ticker)
}
