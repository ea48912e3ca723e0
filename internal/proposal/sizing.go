package proposal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/sentinel/internal/model"
)

// Policy chooses how many contracts each accepted candidate gets.
type Policy string

const (
	// PolicyGreedy buys as many contracts as the remaining budget allows.
	PolicyGreedy Policy = "greedy"
	// PolicyFixed buys ContractsPerTrade contracts, fewer if the budget is short.
	PolicyFixed Policy = "fixed"
	// PolicyEqualSplit gives each trade budget/max_trades, at least one
	// contract, never more than the remaining budget.
	PolicyEqualSplit Policy = "equal_split"
)

// ParsePolicy accepts any case; empty means greedy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyGreedy, nil
	case PolicyGreedy, PolicyFixed, PolicyEqualSplit:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown sizing policy %q", model.ErrValidation, s)
}

// Sizing is a policy plus its parameters.
type Sizing struct {
	Policy            Policy `json:"policy"`
	ContractsPerTrade int64  `json:"contracts_per_trade,omitempty"`
	// MaxContractsPerTrade caps every policy when > 0.
	MaxContractsPerTrade int64 `json:"max_contracts_per_trade,omitempty"`
}

// DefaultSizing is greedy with no per-trade cap.
var DefaultSizing = Sizing{Policy: PolicyGreedy}

func (s Sizing) Validate() error {
	if _, err := ParsePolicy(string(s.Policy)); err != nil {
		return err
	}
	if s.Policy == PolicyFixed && s.ContractsPerTrade < 1 {
		return fmt.Errorf("%w: fixed sizing needs contracts_per_trade >= 1", model.ErrValidation)
	}
	if s.MaxContractsPerTrade < 0 {
		return fmt.Errorf("%w: max_contracts_per_trade must not be negative", model.ErrValidation)
	}
	return nil
}

func (s Sizing) String() string {
	out := string(s.Policy)
	if s.Policy == PolicyFixed {
		out += fmt.Sprintf("(%d)", s.ContractsPerTrade)
	}
	if s.MaxContractsPerTrade > 0 {
		out += fmt.Sprintf(" cap=%d", s.MaxContractsPerTrade)
	}
	return out
}

// contracts returns the size for one trade at price. The result never costs
// more than remaining and may be zero.
func (s Sizing) contracts(price, remaining, budget int64, maxTrades int) int64 {
	if price <= 0 {
		return 0
	}
	affordable := remaining / price

	var n int64
	switch s.Policy {
	case PolicyFixed:
		n = s.ContractsPerTrade
	case PolicyEqualSplit:
		n = max(1, budget/int64(maxTrades)/price)
	default:
		n = affordable
	}
	if s.MaxContractsPerTrade > 0 {
		n = min(n, s.MaxContractsPerTrade)
	}
	return max(0, min(n, affordable))
}

// DollarsToCents converts a dollar amount to whole cents, dropping any
// fractional cent. Negative amounts are ErrInvalidBudget.
func DollarsToCents(dollars decimal.Decimal) (int64, error) {
	if dollars.IsNegative() {
		return 0, fmt.Errorf("%w: %s dollars", model.ErrInvalidBudget, dollars)
	}
	cents := dollars.Shift(2).Floor()
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(maxBudgetCents)) {
		return 0, fmt.Errorf("%w: %s dollars is too large", model.ErrInvalidBudget, dollars)
	}
	return cents.IntPart(), nil
}

// maxBudgetCents keeps contracts × price well inside int64.
const maxBudgetCents = int64(1) << 53
