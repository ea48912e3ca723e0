// Package contract parses exchange market tickers into their series, event
// and strike parts.
//
// Kalshi tickers are hyphen separated: {SERIES}-{EVENT}-{STRIKE}, e.g.
// KXBTCD-25OCT17H17-T109999.99. The series groups markets whose outcomes are
// driven by the same underlying, which is what the concentration limiter
// keys on.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Strike kinds.
const (
	StrikeAbove   = "T" // pays YES above a threshold
	StrikeBetween = "B" // pays YES inside a bucket
)

var (
	partRegex   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.]*$`)
	eventRegex  = regexp.MustCompile(`^(\d{2})([A-Z]{3})(\d{2})(?:H?(\d{2})(\d{2})?)?`)
	strikeRegex = regexp.MustCompile(`^([A-Z]+)?(\d+(?:\.\d+)?)$`)
)

var (
	ErrInvalidTicker = errors.New("contract: invalid ticker format")
	ErrNoEventDate   = errors.New("contract: event code carries no date")
)

// Contract is a parsed market ticker.
type Contract struct {
	Ticker string `json:"ticker"`
	Series string `json:"series"`
	Event  string `json:"event,omitempty"`  // event code, e.g. 25OCT17H17
	Strike string `json:"strike,omitempty"` // strike code, e.g. T109999.99
}

// ParseTicker splits a ticker into series, event and strike. Only the series
// is mandatory; series-level and event-level tickers parse too.
func ParseTicker(ticker string) (*Contract, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTicker)
	}

	parts := strings.SplitN(t, "-", 3)
	for _, p := range parts {
		if !partRegex.MatchString(p) {
			return nil, fmt.Errorf("%w: %s (expected SERIES[-EVENT[-STRIKE]])", ErrInvalidTicker, ticker)
		}
	}

	c := &Contract{Ticker: t, Series: parts[0]}
	if len(parts) > 1 {
		c.Event = parts[1]
	}
	if len(parts) > 2 {
		c.Strike = parts[2]
	}
	return c, nil
}

// Series returns the series of ticker, or the whole ticker if it does not
// parse. It never fails, so grouping degrades to per-market.
func Series(ticker string) string {
	c, err := ParseTicker(ticker)
	if err != nil {
		return ticker
	}
	return c.Series
}

// EventTicker is SERIES-EVENT, or just the series for series-level tickers.
func (c *Contract) EventTicker() string {
	if c.Event == "" {
		return c.Series
	}
	return c.Series + "-" + c.Event
}

// EventDate decodes the YYMONDD[HHH[MM]] prefix of the event code. The hour
// and minute, when present, are exchange local time; loc is applied as is.
func (c *Contract) EventDate(loc *time.Location) (time.Time, error) {
	m := eventRegex.FindStringSubmatch(c.Event)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoEventDate, c.Ticker)
	}
	if loc == nil {
		loc = time.UTC
	}

	layout, value := "06Jan02", m[1]+titleMonth(m[2])+m[3]
	if m[4] != "" {
		layout, value = layout+"15", value+m[4]
		if m[5] != "" {
			layout, value = layout+"04", value+m[5]
		}
	}
	ts, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrNoEventDate, c.Ticker, err)
	}
	return ts, nil
}

// StrikeValue decodes the strike code into its kind prefix and numeric level.
func (c *Contract) StrikeValue() (kind string, level decimal.Decimal, err error) {
	m := strikeRegex.FindStringSubmatch(c.Strike)
	if m == nil {
		return "", decimal.Zero, fmt.Errorf("%w: strike %q", ErrInvalidTicker, c.Strike)
	}
	level, err = decimal.NewFromString(m[2])
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("%w: strike %q: %v", ErrInvalidTicker, c.Strike, err)
	}
	return m[1], level, nil
}

// HasPrefix reports whether ticker starts with any of prefixes. An empty
// prefix list matches everything.
func HasPrefix(ticker string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	t := strings.ToUpper(ticker)
	for _, p := range prefixes {
		if strings.HasPrefix(t, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

func titleMonth(m string) string {
	return m[:1] + strings.ToLower(m[1:])
}
