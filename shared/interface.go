package shared

import (
	"context"
	"time"
)

// MarketDataGateway defines the requirements for fetching market data.
type MarketDataGateway interface {
	// FetchQuote fetches the current price and cumulative volume for the
	// provided symbol.
	FetchQuote(ctx context.Context, symbol string) (*MarketSnapshot, error)
	// FetchDailyBars fetches up to count daily bars for the provided symbol,
	// ordered oldest to newest.
	FetchDailyBars(ctx context.Context, symbol string, count int) ([]Candlestick, error)
}

// OrderGateway defines the requirements for sending orders and querying
// account state.
type OrderGateway interface {
	// SendOrder sends a market order and returns the brokerage order id.
	SendOrder(ctx context.Context, side OrderSide, symbol string, qty int64) (string, error)
	// FetchPositionQty fetches the held quantity for the provided symbol.
	FetchPositionQty(ctx context.Context, symbol string) (int64, error)
	// FetchUnfilledOrders fetches outstanding orders for the provided symbol.
	FetchUnfilledOrders(ctx context.Context, symbol string) ([]UnfilledOrder, error)
}

// TradingCalendar defines the requirements for answering whether a calendar
// date is a trading day on the exchange.
type TradingCalendar interface {
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
}

// NotificationSink defines the requirements for delivering best-effort
// notifications. Implementations must never fail the trading path.
type NotificationSink interface {
	Notify(subject string, body string)
}
