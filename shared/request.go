package shared

// Summary represents the derived per-tick summary for a symbol.
type Summary struct {
	Symbol        string
	Price         int64
	Volume        int64
	BreakoutPrice int64
	Signal        string
	AutoQty       int64
	BuyState      LegState
	SellState     LegState
	PendingSell   string
}

// SummaryRequest represents a request to fetch the current trading summary.
type SummaryRequest struct {
	Response chan Summary
}

// NewSummaryRequest initializes a new summary request.
func NewSummaryRequest() *SummaryRequest {
	return &SummaryRequest{
		Response: make(chan Summary, 1),
	}
}

// SellAllRequest represents a manual request to liquidate the full position
// for a symbol at market.
type SellAllRequest struct {
	Symbol   string
	Response chan error
}

// NewSellAllRequest initializes a new sell-all request.
func NewSellAllRequest(symbol string) *SellAllRequest {
	return &SellAllRequest{
		Symbol:   symbol,
		Response: make(chan error, 1),
	}
}
