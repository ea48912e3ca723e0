// Package correlation caps worst-case loss across markets whose outcomes move
// together.
//
// Markets in one exchange series (every strike of KXBTCD, say) resolve off
// the same underlying, so ten small YES bets across a series carry the risk
// of one large one. The limiter keeps a per-market and a per-series ceiling
// on summed max loss.
package correlation

import (
	"errors"
	"math"

	"github.com/atmx/sentinel/internal/contract"
)

var (
	// ErrPerMarketLimitExceeded is returned when a trade would push a single
	// market's max loss beyond the per-market maximum.
	ErrPerMarketLimitExceeded = errors.New("correlation: per-market loss limit exceeded")

	// ErrSeriesLimitExceeded is returned when a trade would push the summed
	// max loss across one series beyond the series maximum.
	ErrSeriesLimitExceeded = errors.New("correlation: series loss limit exceeded")
)

// Unlimited is the headroom reported when no limit applies.
const Unlimited = int64(math.MaxInt64)

// Exposure maps ticker to worst-case loss in cents.
type Exposure map[string]int64

// Add records lossCents more exposure on ticker.
func (e Exposure) Add(ticker string, lossCents int64) {
	e[ticker] += lossCents
}

// PositionLimiter enforces loss limits with series awareness. A zero or
// negative limit disables that check.
type PositionLimiter struct {
	// MaxPerMarket is the maximum summed max loss in any single market.
	MaxPerMarket int64

	// MaxPerSeries is the maximum summed max loss across all markets of one
	// series.
	MaxPerSeries int64

	// SeriesOf groups tickers. Defaults to contract.Series.
	SeriesOf func(ticker string) string
}

// NewPositionLimiter creates a limiter with the given per-market and
// per-series limits, in cents.
func NewPositionLimiter(maxPerMarket, maxPerSeries int64) *PositionLimiter {
	return &PositionLimiter{
		MaxPerMarket: maxPerMarket,
		MaxPerSeries: maxPerSeries,
		SeriesOf:     contract.Series,
	}
}

// Enabled reports whether any limit is set.
func (l *PositionLimiter) Enabled() bool {
	return l != nil && (l.MaxPerMarket > 0 || l.MaxPerSeries > 0)
}

// CheckLimit validates whether adding lossDelta on ticker respects the limits
// given the current exposure.
func (l *PositionLimiter) CheckLimit(ticker string, lossDelta int64, existing Exposure) error {
	if !l.Enabled() {
		return nil
	}

	if l.MaxPerMarket > 0 && existing[ticker]+lossDelta > l.MaxPerMarket {
		return ErrPerMarketLimitExceeded
	}
	if l.MaxPerSeries > 0 && l.seriesExposure(ticker, existing)+lossDelta > l.MaxPerSeries {
		return ErrSeriesLimitExceeded
	}
	return nil
}

// Headroom is the largest additional loss ticker can take, never negative.
func (l *PositionLimiter) Headroom(ticker string, existing Exposure) int64 {
	if !l.Enabled() {
		return Unlimited
	}

	room := Unlimited
	if l.MaxPerMarket > 0 {
		room = min(room, l.MaxPerMarket-existing[ticker])
	}
	if l.MaxPerSeries > 0 {
		room = min(room, l.MaxPerSeries-l.seriesExposure(ticker, existing))
	}
	return max(room, 0)
}

func (l *PositionLimiter) seriesExposure(ticker string, existing Exposure) int64 {
	seriesOf := l.SeriesOf
	if seriesOf == nil {
		seriesOf = contract.Series
	}

	series := seriesOf(ticker)
	var total int64
	for t, loss := range existing {
		if seriesOf(t) == series {
			total += loss
		}
	}
	return total
}
