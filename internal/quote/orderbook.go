package quote

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/platform/kalshi"
)

// FromOrderbook derives a quote from resting bids. The best bid on each side
// is the highest priced level with size; asks are implied from the opposite
// bid (yes_ask = 100 - no_bid). An empty side is unknown.
func FromOrderbook(ob *kalshi.Orderbook) model.Quote {
	q := model.Quote{Ticker: ob.Ticker}
	q.YesBid = bestBid(ob.Yes)
	q.NoBid = bestBid(ob.No)
	if q.NoBid != nil {
		q.YesAsk = model.Cents(100 - *q.NoBid)
	}
	if q.YesBid != nil {
		q.NoAsk = model.Cents(100 - *q.YesBid)
	}
	return q
}

func bestBid(levels []kalshi.PriceLevel) *int64 {
	var best *int64
	for _, l := range levels {
		if l.Quantity <= 0 || l.Price < 1 || l.Price > 99 {
			continue
		}
		if best == nil || l.Price > *best {
			best = model.Cents(l.Price)
		}
	}
	return best
}

// OrderbookFetcher is the part of the exchange client the source needs.
type OrderbookFetcher interface {
	GetOrderbook(ctx context.Context, ticker string, depth int) (*kalshi.Orderbook, error)
}

// Orderbook quotes tickers by fetching their books concurrently.
type Orderbook struct {
	client      OrderbookFetcher
	concurrency int
	logger      *slog.Logger
}

// NewOrderbook creates an orderbook-backed source. concurrency bounds the
// number of in-flight book requests.
func NewOrderbook(client OrderbookFetcher, concurrency int, logger *slog.Logger) *Orderbook {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orderbook{client: client, concurrency: concurrency, logger: logger}
}

// Quotes fetches one book per distinct ticker. A failed fetch leaves that
// ticker unquoted; only cancellation of ctx fails the whole call.
func (s *Orderbook) Quotes(ctx context.Context, tickers []string) (model.Quotes, error) {
	var (
		mu  sync.Mutex
		out = make(model.Quotes, len(tickers))
		g   errgroup.Group
	)
	g.SetLimit(s.concurrency)

	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		if seen[t] {
			continue
		}
		seen[t] = true

		t := t
		g.Go(func() error {
			ob, err := s.client.GetOrderbook(ctx, t, 1)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("orderbook fetch failed", "ticker", t, "err", err)
				return nil
			}
			q := FromOrderbook(ob)
			q.Ticker = t

			mu.Lock()
			out[t] = q
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
