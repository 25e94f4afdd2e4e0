package shared

import (
	"time"
)

// Candlestick represents a daily bar for a symbol. Prices are integer
// currency units (krw).
type Candlestick struct {
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
	Date   time.Time

	// Metadata.
	Symbol string
}

// MarketSnapshot represents the last observed price and cumulative volume
// for a symbol.
type MarketSnapshot struct {
	Symbol string
	Price  int64
	Volume int64
	At     time.Time
}
