// Package model defines the core domain types shared across the engine.
// Prices and money are integer cents. A binary contract settles at 100 or 0,
// so every price lives in [0, 100].
package model

import (
	"fmt"
	"strings"
	"time"
)

// Side is the held side of a binary event contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide accepts "yes"/"no" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return SideYes, nil
	case "no":
		return SideNo, nil
	}
	return "", ErrInvalidSide
}

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Upper is the side as it appears on proposed trade records ("YES"/"NO").
func (s Side) Upper() string {
	return strings.ToUpper(string(s))
}

func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// UnmarshalText normalizes "YES"/"No" style input when a Side is decoded
// from JSON, YAML or TOML. An empty value decodes to the zero Side and is
// left for Validate to reject.
func (s *Side) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ""
		return nil
	}
	v, err := ParseSide(string(b))
	if err != nil {
		return fmt.Errorf("%w: %q", err, b)
	}
	*s = v
	return nil
}

// Position is an open holding in one market on one side.
// Invariant: CostBasisCents == Quantity * AvgEntryCents.
type Position struct {
	Ticker         string    `json:"ticker"`
	Side           Side      `json:"side"`
	Quantity       int64     `json:"qty"`
	AvgEntryCents  int64     `json:"avg_entry_cents"`
	CostBasisCents int64     `json:"cost_basis_cents"`
	OpenedAt       time.Time `json:"opened_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Fill is a confirmed execution applied to the ledger.
// QtyDelta > 0 adds contracts on Side, QtyDelta < 0 reduces them.
type Fill struct {
	Ticker     string `json:"ticker"`
	Side       Side   `json:"side"`
	QtyDelta   int64  `json:"qty_delta"`
	PriceCents int64  `json:"price_cents"`
}

// FillRecord is one applied fill in the execution log. RealizedPnLCents is
// (price - avg entry) × contracts on reductions and zero on additions.
type FillRecord struct {
	ID               string    `json:"id"`
	TS               time.Time `json:"ts"`
	Ticker           string    `json:"ticker"`
	Side             Side      `json:"side"`
	QtyDelta         int64     `json:"qty_delta"`
	PriceCents       int64     `json:"price_cents"`
	RealizedPnLCents int64     `json:"realized_pnl_cents"`
}

// Quote is the top of book for one market. A nil field is unknown.
type Quote struct {
	Ticker string `json:"ticker"`
	YesBid *int64 `json:"yes_bid"`
	YesAsk *int64 `json:"yes_ask"`
	NoBid  *int64 `json:"no_bid"`
	NoAsk  *int64 `json:"no_ask"`
}

// Quotes maps ticker to its current quote.
type Quotes map[string]Quote

// ValuationRow is the mark-to-market of one position. Nil money fields mean
// the exit quote was unavailable and the row is excluded from totals.
type ValuationRow struct {
	Ticker         string `json:"ticker"`
	Side           Side   `json:"side"`
	Quantity       int64  `json:"qty"`
	AvgEntryCents  int64  `json:"avg_entry_cents"`
	CostBasisCents int64  `json:"cost_basis_cents"`
	BestExitBid    *int64 `json:"best_exit_bid"`
	ImpliedExitAsk *int64 `json:"implied_exit_ask"`
	LiqValueCents  *int64 `json:"liq_value_cents"`
	UnrealPnLCents *int64 `json:"unreal_pnl_cents"`
}

// Known reports whether the row carries a liquidation value.
func (r ValuationRow) Known() bool {
	return r.LiqValueCents != nil
}

// Totals sums the rows with known quotes.
// Invariant: UnrealPnLCents == LiqValueCents - CostBasisCents.
type Totals struct {
	CostBasisCents int64 `json:"cost_basis_cents"`
	LiqValueCents  int64 `json:"liq_value_cents"`
	UnrealPnLCents int64 `json:"unreal_pnl_cents"`
}

// Valuation is a portfolio snapshot. It is approximate: exits are priced at
// best bid with no depth or slippage modelling.
type Valuation struct {
	Rows         []ValuationRow `json:"rows"`
	Totals       Totals         `json:"totals"`
	ExcludedRows int            `json:"excluded_rows"`
	Approximate  bool           `json:"approximate"`
	AsOf         time.Time      `json:"as_of"`
}

// Candidate is a ranked trade opportunity delivered by a signal source.
type Candidate struct {
	Ticker          string    `json:"ticker" yaml:"ticker"`
	Side            Side      `json:"side" yaml:"side"`
	LimitPriceCents int64     `json:"limit_price_cents" yaml:"limit_price_cents"`
	CloseTime       time.Time `json:"close_time" yaml:"close_time"`
	Score           float64   `json:"score" yaml:"score"`
	Rationale       string    `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// TradeStatus is the lifecycle state of a proposed trade.
type TradeStatus string

const (
	StatusProposed TradeStatus = "proposed"
	StatusAccepted TradeStatus = "accepted"
	StatusRejected TradeStatus = "rejected"
	StatusExpired  TradeStatus = "expired"
)

// ParseTradeStatus accepts any case.
func ParseTradeStatus(s string) (TradeStatus, error) {
	st := TradeStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusProposed, StatusAccepted, StatusRejected, StatusExpired:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Terminal reports whether no further transition is possible.
func (s TradeStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired
}

// CanTransition reports whether from → to is a legal lifecycle move.
// Only proposed trades move, and nothing re-enters proposed.
func CanTransition(from, to TradeStatus) bool {
	return from == StatusProposed && to.Terminal()
}

// ProposedTrade is a hypothetical trade produced by a proposal run.
// Everything except Status is immutable once created.
type ProposedTrade struct {
	ID                    string      `json:"id"`
	RunID                 string      `json:"run_id"`
	TS                    time.Time   `json:"ts"`
	Ticker                string      `json:"ticker"`
	Side                  string      `json:"side"` // "YES" or "NO"
	LimitPriceCents       int64       `json:"limit_price_cents"`
	Contracts             int64       `json:"contracts"`
	EstimatedMaxLossCents int64       `json:"estimated_max_loss_cents"`
	Status                TradeStatus `json:"status"`
	Rationale             string      `json:"rationale,omitempty"`
}

// Level is the severity of an audit entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// AuditEntry is an append-only record of an engine action or decision.
// Entries are ordered by TS, then ID.
type AuditEntry struct {
	ID        string    `json:"id"`
	TS        time.Time `json:"ts"`
	Level     Level     `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}
