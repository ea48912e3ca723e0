package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity caps contracts per fill and per position. At 100 cents per
// contract it keeps every cents product inside float64's exact integer range.
const MaxQuantity int64 = (1 << 53) / 100

// Validate checks a fill in isolation. Additions must be priced 1–99;
// reductions may close at 0–100 (settlement).
func (f Fill) Validate() error {
	if strings.TrimSpace(f.Ticker) == "" {
		return ErrInvalidTicker
	}
	if !f.Side.Valid() {
		return ErrInvalidSide
	}
	if f.QtyDelta == 0 {
		return ErrInvalidQuantity
	}
	if f.QtyDelta > MaxQuantity || f.QtyDelta < -MaxQuantity {
		return fmt.Errorf("%w: %d exceeds %d contracts", ErrInvalidQuantity, f.QtyDelta, MaxQuantity)
	}
	if f.QtyDelta > 0 && (f.PriceCents < 1 || f.PriceCents > 99) {
		return fmt.Errorf("%w: entry price %d not in 1..99", ErrInvalidPrice, f.PriceCents)
	}
	if f.QtyDelta < 0 && (f.PriceCents < 0 || f.PriceCents > 100) {
		return fmt.Errorf("%w: exit price %d not in 0..100", ErrInvalidPrice, f.PriceCents)
	}
	return nil
}

// ApplyFill returns the position that results from applying f.
//
// cur is the open position on f's ticker and side (nil if none) and opposite
// is the open position on the other side of the same ticker (nil if none).
// A nil result with a nil error means the position closed to zero.
//
// Same-side additions re-average the entry price (half-up to whole cents) and
// cost basis is re-derived as qty × avg so the invariant always holds.
// Reductions keep the average. A side is never flipped in place: buying the
// opposite side while a position is open, or reducing below zero, is
// ErrInvalidFill.
func ApplyFill(cur, opposite *Position, f Fill, now time.Time) (*Position, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	if f.QtyDelta > 0 && opposite != nil && opposite.Quantity > 0 {
		return nil, fmt.Errorf("%w: %s holds %d %s, close it before buying %s",
			ErrInvalidFill, f.Ticker, opposite.Quantity, opposite.Side, f.Side)
	}

	if cur == nil || cur.Quantity == 0 {
		if f.QtyDelta < 0 {
			return nil, fmt.Errorf("%w: no open %s position in %s to reduce",
				ErrInvalidFill, f.Side, f.Ticker)
		}
		return &Position{
			Ticker:         f.Ticker,
			Side:           f.Side,
			Quantity:       f.QtyDelta,
			AvgEntryCents:  f.PriceCents,
			CostBasisCents: f.QtyDelta * f.PriceCents,
			OpenedAt:       now,
			UpdatedAt:      now,
		}, nil
	}

	next := *cur
	next.UpdatedAt = now
	qty := cur.Quantity + f.QtyDelta

	switch {
	case qty > MaxQuantity:
		return nil, fmt.Errorf("%w: %s %s would hold %d contracts, cap is %d",
			ErrInvalidQuantity, f.Ticker, f.Side, qty, MaxQuantity)
	case qty < 0:
		return nil, fmt.Errorf("%w: reducing %s %s by %d would leave %d contracts",
			ErrInvalidFill, f.Ticker, f.Side, -f.QtyDelta, qty)
	case qty == 0:
		return nil, nil
	case f.QtyDelta > 0:
		next.AvgEntryCents = weightedAverage(cur.Quantity, cur.AvgEntryCents, f.QtyDelta, f.PriceCents)
	}

	next.Quantity = qty
	next.CostBasisCents = qty * next.AvgEntryCents
	return &next, nil
}

// RealizedPnL is the profit locked in by applying f to cur. Only reductions
// realize anything: (exit price - avg entry) × contracts closed. Call it with
// the position as it was before the fill.
func RealizedPnL(cur *Position, f Fill) int64 {
	if f.QtyDelta >= 0 || cur == nil {
		return 0
	}
	return (f.PriceCents - cur.AvgEntryCents) * -f.QtyDelta
}

func weightedAverage(q1, p1, q2, p2 int64) int64 {
	total := decimal.NewFromInt(q1 * p1).Add(decimal.NewFromInt(q2 * p2))
	return total.Div(decimal.NewFromInt(q1 + q2)).Round(0).IntPart()
}
