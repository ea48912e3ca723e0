// Package quote supplies top-of-book snapshots to the valuation calculator.
// A source never invents prices: a ticker it cannot quote is left out of the
// result, and the calculator reports that row as unknown.
package quote

import (
	"context"
	"sync"

	"github.com/atmx/sentinel/internal/model"
)

// Source returns the current quote for each requested ticker it knows.
type Source interface {
	Quotes(ctx context.Context, tickers []string) (model.Quotes, error)
}

// Static is a fixed snapshot, used by the CLI scenarios and tests.
type Static struct {
	mu     sync.RWMutex
	quotes model.Quotes
}

// NewStatic creates a source that always returns (a subset of) quotes.
func NewStatic(quotes model.Quotes) *Static {
	cp := make(model.Quotes, len(quotes))
	for k, v := range quotes {
		cp[k] = v
	}
	return &Static{quotes: cp}
}

// Set replaces the quote for q.Ticker.
func (s *Static) Set(q model.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Ticker] = q
}

func (s *Static) Quotes(_ context.Context, tickers []string) (model.Quotes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(model.Quotes, len(tickers))
	for _, t := range tickers {
		if q, ok := s.quotes[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}
