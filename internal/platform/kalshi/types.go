package kalshi

import (
	"encoding/json"
	"fmt"
	"time"
)

// Market is a market as returned by GET /markets. Prices are integer cents.
type Market struct {
	Ticker       string    `json:"ticker"`
	EventTicker  string    `json:"event_ticker"`
	SeriesTicker string    `json:"series_ticker,omitempty"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Status       string    `json:"status"`
	YesBid       int64     `json:"yes_bid"`
	YesAsk       int64     `json:"yes_ask"`
	NoBid        int64     `json:"no_bid"`
	NoAsk        int64     `json:"no_ask"`
	LastPrice    int64     `json:"last_price"`
	Volume       int64     `json:"volume"`
	Volume24H    int64     `json:"volume_24h"`
	Liquidity    int64     `json:"liquidity"`
	OpenInterest int64     `json:"open_interest"`
	CloseTime    time.Time `json:"close_time"`
}

// MarketsPage is one page of GET /markets.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// MarketsQuery filters GET /markets. Zero fields are omitted.
type MarketsQuery struct {
	Status       string
	SeriesTicker string
	Limit        int
	Cursor       string
	MaxCloseTime time.Time
}

// Orderbook holds resting bids on both sides. Kalshi only publishes bids;
// asks are implied from the opposite side.
type Orderbook struct {
	Ticker string       `json:"-"`
	Yes    []PriceLevel `json:"yes"`
	No     []PriceLevel `json:"no"`
}

// PriceLevel is a [price, quantity] pair.
type PriceLevel struct {
	Price    int64
	Quantity int64
}

func (l *PriceLevel) UnmarshalJSON(b []byte) error {
	var pair []int64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("kalshi: price level: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("kalshi: price level has %d elements", len(pair))
	}
	l.Price, l.Quantity = pair[0], pair[1]
	return nil
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{l.Price, l.Quantity})
}

// ErrorResponse is the body of a non-2xx reply.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
