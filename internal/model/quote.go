package model

import "fmt"

// Cents returns a pointer to v, for optional price fields.
func Cents(v int64) *int64 {
	return &v
}

// Validate rejects fields outside [0, 100].
func (q Quote) Validate() error {
	for name, v := range map[string]*int64{
		"yes_bid": q.YesBid, "yes_ask": q.YesAsk,
		"no_bid": q.NoBid, "no_ask": q.NoAsk,
	} {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("%w: %s %s=%d", ErrInvalidQuote, q.Ticker, name, *v)
		}
	}
	return nil
}

// ExitBid is the bid a position on side would liquidate against.
func (q Quote) ExitBid(side Side) *int64 {
	if side == SideYes {
		return q.YesBid
	}
	return q.NoBid
}

// ImpliedExitAsk is the cost to re-enter side at market, in side's own price
// frame. Under the two-sided identity yes_ask ≈ 100 - no_bid, so the opposite
// bid is preferred; the quoted ask is the fallback.
func (q Quote) ImpliedExitAsk(side Side) *int64 {
	opp, ask := q.NoBid, q.YesAsk
	if side == SideNo {
		opp, ask = q.YesBid, q.NoAsk
	}
	if opp != nil {
		return Cents(100 - *opp)
	}
	if ask != nil {
		return Cents(*ask)
	}
	return nil
}
