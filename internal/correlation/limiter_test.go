package correlation

import (
	"testing"
)

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewPositionLimiter(1000, 5000)

	err := limiter.CheckLimit("KXBTC-26OCT17-B100", 100, nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PerMarketExceeded(t *testing.T) {
	limiter := NewPositionLimiter(1000, 5000)

	// Existing 950 + new 100 = 1050 > 1000.
	existing := Exposure{"KXBTC-26OCT17-B100": 950}

	err := limiter.CheckLimit("KXBTC-26OCT17-B100", 100, existing)
	if err != ErrPerMarketLimitExceeded {
		t.Errorf("expected ErrPerMarketLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_PerMarketNotExceeded(t *testing.T) {
	limiter := NewPositionLimiter(1000, 5000)

	existing := Exposure{"KXBTC-26OCT17-B100": 500}

	err := limiter.CheckLimit("KXBTC-26OCT17-B100", 100, existing)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_SeriesExceeded(t *testing.T) {
	limiter := NewPositionLimiter(1000, 1500)

	// Two strikes of the same series, each under the per-market limit.
	existing := Exposure{
		"KXBTC-26OCT17-B100": 800,
		"KXBTC-26OCT17-B101": 600,
	}

	err := limiter.CheckLimit("KXBTC-26OCT17-B102", 200, existing)
	if err != ErrSeriesLimitExceeded {
		t.Errorf("expected ErrSeriesLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_OtherSeriesNotCounted(t *testing.T) {
	limiter := NewPositionLimiter(1000, 1500)

	existing := Exposure{
		"KXETH-26OCT17-B4":   1000,
		"KXBTC-26OCT17-B100": 800,
	}

	err := limiter.CheckLimit("KXBTC-26OCT17-B101", 700, existing)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_DisabledLimits(t *testing.T) {
	limiter := NewPositionLimiter(0, 0)

	if limiter.Enabled() {
		t.Error("zero limits should disable the limiter")
	}
	err := limiter.CheckLimit("A", 1<<40, Exposure{"A": 1 << 40})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	var nilLimiter *PositionLimiter
	if got := nilLimiter.Headroom("A", nil); got != Unlimited {
		t.Errorf("expected Unlimited, got %d", got)
	}
}

func TestHeadroom(t *testing.T) {
	limiter := NewPositionLimiter(1000, 1500)
	existing := Exposure{
		"KXBTC-26OCT17-B100": 300,
		"KXBTC-26OCT17-B101": 900,
	}

	// Series room 1500-1200=300 is tighter than market room 1000-300=700.
	if got := limiter.Headroom("KXBTC-26OCT17-B100", existing); got != 300 {
		t.Errorf("expected 300, got %d", got)
	}

	existing.Add("KXBTC-26OCT17-B101", 600)
	if got := limiter.Headroom("KXBTC-26OCT17-B100", existing); got != 0 {
		t.Errorf("expected 0 once over the limit, got %d", got)
	}

	// Only the per-market limit applies to a fresh series.
	if got := limiter.Headroom("KXETH-26OCT17-B4", existing); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
}

func TestCustomSeriesGrouping(t *testing.T) {
	limiter := NewPositionLimiter(0, 100)
	limiter.SeriesOf = func(string) string { return "all" }

	err := limiter.CheckLimit("B", 60, Exposure{"A": 50})
	if err != ErrSeriesLimitExceeded {
		t.Errorf("expected ErrSeriesLimitExceeded, got %v", err)
	}
}
