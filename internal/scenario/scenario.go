// Package scenario loads YAML files describing a book of positions, a set
// of quotes and a candidate list, for offline valuation and proposal runs.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atmx/sentinel/internal/ledger"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/quote"
	"github.com/atmx/sentinel/internal/signal"
)

// Scenario is one YAML document. Positions are opened first, then fills are
// applied in order.
type Scenario struct {
	Positions  []PositionDoc         `yaml:"positions"`
	Fills      []FillDoc             `yaml:"fills"`
	Quotes     []QuoteDoc            `yaml:"quotes"`
	Candidates []signal.CandidateDoc `yaml:"candidates"`
}

// PositionDoc opens a position at its average entry price.
type PositionDoc struct {
	Ticker        string     `yaml:"ticker"`
	Side          model.Side `yaml:"side"`
	Quantity      int64      `yaml:"qty"`
	AvgEntryCents int64      `yaml:"avg_entry_cents"`
}

// FillDoc is a ledger fill.
type FillDoc struct {
	Ticker     string     `yaml:"ticker"`
	Side       model.Side `yaml:"side"`
	QtyDelta   int64      `yaml:"qty_delta"`
	PriceCents int64      `yaml:"price_cents"`
}

// QuoteDoc is a top of book. Omitted or null fields are unknown.
type QuoteDoc struct {
	Ticker string `yaml:"ticker"`
	YesBid *int64 `yaml:"yes_bid"`
	YesAsk *int64 `yaml:"yes_ask"`
	NoBid  *int64 `yaml:"no_bid"`
	NoAsk  *int64 `yaml:"no_ask"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a scenario document. Unknown keys are rejected so typos do
// not silently drop data.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scenario: parse: %w", err)
	}
	return &sc, nil
}

// AllFills returns the positions as opening fills followed by the explicit
// fills.
func (sc *Scenario) AllFills() []model.Fill {
	out := make([]model.Fill, 0, len(sc.Positions)+len(sc.Fills))
	for _, p := range sc.Positions {
		out = append(out, model.Fill{Ticker: p.Ticker, Side: p.Side, QtyDelta: p.Quantity, PriceCents: p.AvgEntryCents})
	}
	for _, f := range sc.Fills {
		out = append(out, model.Fill{Ticker: f.Ticker, Side: f.Side, QtyDelta: f.QtyDelta, PriceCents: f.PriceCents})
	}
	return out
}

// Apply replays every fill through the ledger, stopping at the first
// rejection.
func (sc *Scenario) Apply(ctx context.Context, l *ledger.Service) error {
	for i, f := range sc.AllFills() {
		if _, err := l.ApplyFill(ctx, f); err != nil {
			return fmt.Errorf("scenario: fill %d (%s %s): %w", i, f.Ticker, f.Side, err)
		}
	}
	return nil
}

// QuoteSource serves the scenario quotes.
func (sc *Scenario) QuoteSource() *quote.Static {
	qs := make(model.Quotes, len(sc.Quotes))
	for _, q := range sc.Quotes {
		qs[q.Ticker] = model.Quote{Ticker: q.Ticker, YesBid: q.YesBid, YesAsk: q.YesAsk, NoBid: q.NoBid, NoAsk: q.NoAsk}
	}
	return quote.NewStatic(qs)
}

// SignalSource serves the scenario candidates in file order.
func (sc *Scenario) SignalSource() (*signal.Static, error) {
	return signal.FromDocs(sc.Candidates)
}
