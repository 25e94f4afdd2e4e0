package shared

// OrderSide represents the side of an order.
type OrderSide int

const (
	Buy OrderSide = iota
	Sell
)

// String stringifies the provided order side.
func (s OrderSide) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// FillEvent represents an asynchronous fill confirmation delivered by the
// brokerage. A leg is considered fully filled once UnfilledQty reaches zero.
type FillEvent struct {
	OrderID     string
	OrderQty    int64
	UnfilledQty int64
	FillPrice   int64
}

// UnfilledOrder represents an outstanding order reported by the brokerage.
type UnfilledOrder struct {
	OrderID  string
	Symbol   string
	Side     OrderSide
	Qty      int64
	Unfilled int64
	Price    int64
}

// TradeCycle represents a completed buy/sell round trip for a symbol.
type TradeCycle struct {
	Symbol    string
	BuyDate   string
	BuyPrice  int64
	Qty       int64
	SellDate  string
	SellPrice int64
}

// PNL returns the realized profit or loss for the cycle in currency units.
func (c *TradeCycle) PNL() int64 {
	return (c.SellPrice - c.BuyPrice) * c.Qty
}
