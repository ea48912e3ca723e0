package signal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/platform/kalshi"
)

// DefaultKeywords limits the universe to BTC/ETH markets.
var DefaultKeywords = []string{"BTC", "BITCOIN", "ETH", "ETHEREUM"}

// Scoring constants. Liquidity is in cents, volume in contracts.
const (
	scaleDivisor    = 5000.0
	scaleCap        = 5.0
	soonMinHours    = 0.5
	soonMaxHours    = 12.0
	soonBonus       = 2.0
	tooClosePenalty = -2.0
	laterBonus      = 0.5
	statusPenalty   = -0.5
	defaultLimit    = 50
	maxPages        = 8
)

// MarketLister is the part of the exchange client the universe needs.
type MarketLister interface {
	ListMarkets(ctx context.Context, q kalshi.MarketsQuery, maxPages int) ([]kalshi.Market, error)
}

// Universe scores open exchange markets closing within the horizon and
// returns them as YES candidates, best first.
type Universe struct {
	client   MarketLister
	keywords []string
	now      func() time.Time
	logger   *slog.Logger
}

// NewUniverse creates a scorer. Markets must match one of keywords (in the
// title, ticker or event ticker) to be considered; nil means
// DefaultKeywords and an empty non-nil slice accepts everything.
func NewUniverse(client MarketLister, keywords []string, logger *slog.Logger) *Universe {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	upper := make([]string, len(keywords))
	for i, k := range keywords {
		upper[i] = strings.ToUpper(k)
	}
	return &Universe{
		client:   client,
		keywords: upper,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func (u *Universe) Candidates(ctx context.Context, horizon time.Duration) ([]model.Candidate, error) {
	now := u.now()
	cutoff := now.Add(horizon)

	markets, err := u.client.ListMarkets(ctx, kalshi.MarketsQuery{
		Status:       "open",
		Limit:        200,
		MaxCloseTime: cutoff,
	}, maxPages)
	if err != nil && len(markets) == 0 {
		return nil, fmt.Errorf("signal: list markets: %w", err)
	}
	if err != nil {
		u.logger.Warn("market listing truncated", "err", err, "markets", len(markets))
	}

	type scored struct {
		cand  model.Candidate
		score float64
	}
	var out []scored
	for _, m := range markets {
		c, ok := u.score(m, now, cutoff)
		if ok {
			out = append(out, scored{c, c.Score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	cands := make([]model.Candidate, len(out))
	for i, s := range out {
		cands[i] = s.cand
	}
	u.logger.Debug("universe scored", "markets", len(markets), "candidates", len(cands))
	return cands, nil
}

func (u *Universe) score(m kalshi.Market, now, cutoff time.Time) (model.Candidate, bool) {
	if m.Ticker == "" || m.CloseTime.IsZero() {
		return model.Candidate{}, false
	}
	if !m.CloseTime.After(now) || m.CloseTime.After(cutoff) {
		return model.Candidate{}, false
	}
	tags := u.tags(m)
	if len(u.keywords) > 0 && len(tags) == 0 {
		return model.Candidate{}, false
	}

	var score float64
	var reasons []string

	liq := float64(m.Liquidity)
	score += min(liq/scaleDivisor, scaleCap)
	if liq >= 1000 {
		reasons = append(reasons, "liquidity_ok")
	} else {
		reasons = append(reasons, "low_liquidity")
	}

	vol := float64(m.Volume24H)
	score += min(vol/scaleDivisor, scaleCap)
	if vol >= 1000 {
		reasons = append(reasons, "volume_ok")
	} else {
		reasons = append(reasons, "low_volume")
	}

	hrs := m.CloseTime.Sub(now).Hours()
	switch {
	case hrs >= soonMinHours && hrs <= soonMaxHours:
		score += soonBonus
		reasons = append(reasons, "closes_soon")
	case hrs < soonMinHours:
		score += tooClosePenalty
		reasons = append(reasons, "too_close")
	default:
		score += laterBonus
		reasons = append(reasons, "not_too_close")
	}

	if st := strings.ToLower(m.Status); st != "" && st != "open" && st != "active" {
		score += statusPenalty
		reasons = append(reasons, "status_"+st)
	}

	return model.Candidate{
		Ticker:          m.Ticker,
		Side:            model.SideYes,
		LimitPriceCents: limitPrice(m),
		CloseTime:       m.CloseTime,
		Score:           score,
		Rationale: fmt.Sprintf("score=%.2f tags=%s reasons=%s",
			score, strings.Join(tags, ","), strings.Join(reasons, ",")),
	}, true
}

func (u *Universe) tags(m kalshi.Market) []string {
	text := strings.ToUpper(m.Title + " " + m.Ticker + " " + m.EventTicker + " " + m.SeriesTicker)
	var tags []string
	for _, k := range u.keywords {
		if strings.Contains(text, k) {
			tags = append(tags, strings.ToLower(k))
		}
	}
	return tags
}

// limitPrice is the quoted YES ask, else the last trade, else 50.
func limitPrice(m kalshi.Market) int64 {
	if m.YesAsk >= 1 && m.YesAsk <= 99 {
		return m.YesAsk
	}
	if m.LastPrice >= 1 && m.LastPrice <= 99 {
		return m.LastPrice
	}
	return defaultLimit
}
