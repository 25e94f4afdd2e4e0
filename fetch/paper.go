package fetch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jyhan/lwtrader/shared"
	"github.com/rs/zerolog"
)

// fillBufferSize is the buffer size for the simulated fill channel.
const fillBufferSize = 64

// PaperConfig represents the configuration for the paper order gateway.
type PaperConfig struct {
	// Market quotes fill prices for simulated orders.
	Market shared.MarketDataGateway
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Paper is an order gateway that simulates the brokerage: orders are
// assigned synthetic ids, fill immediately at the last quoted price and
// adjust an in-memory position book. Fill confirmations are delivered on a
// channel the same way the live fill feed delivers them.
type Paper struct {
	cfg       *PaperConfig
	positions map[string]int64
	fills     chan shared.FillEvent
}

// Ensure the paper gateway implements the OrderGateway interface.
var _ shared.OrderGateway = (*Paper)(nil)

// NewPaper initializes a new paper order gateway.
func NewPaper(cfg *PaperConfig) *Paper {
	return &Paper{
		cfg:       cfg,
		positions: make(map[string]int64),
		fills:     make(chan shared.FillEvent, fillBufferSize),
	}
}

// Fills returns the simulated fill confirmation channel.
func (p *Paper) Fills() <-chan shared.FillEvent {
	return p.fills
}

// SendOrder simulates a market order, filling it immediately in full.
func (p *Paper) SendOrder(ctx context.Context, side shared.OrderSide, symbol string, qty int64) (string, error) {
	if qty <= 0 {
		return "", fmt.Errorf("order quantity must be positive, got %d", qty)
	}

	var price int64
	snapshot, err := p.cfg.Market.FetchQuote(ctx, symbol)
	switch {
	case err != nil:
		// The simulated fill proceeds without a price rather than failing
		// the order the live gateway would have accepted.
		p.cfg.Logger.Error().Msgf("quoting paper fill price for %s: %v", symbol, err)
	default:
		price = snapshot.Price
	}

	switch side {
	case shared.Buy:
		p.positions[symbol] += qty
	case shared.Sell:
		p.positions[symbol] -= qty
		if p.positions[symbol] < 0 {
			p.positions[symbol] = 0
		}
	}

	orderID := uuid.New().String()

	event := shared.FillEvent{
		OrderID:     orderID,
		OrderQty:    qty,
		UnfilledQty: 0,
		FillPrice:   price,
	}

	select {
	case p.fills <- event:
		// do nothing.
	default:
		p.cfg.Logger.Error().Msgf("paper fill channel at capacity: %d/%d",
			len(p.fills), fillBufferSize)
	}

	p.cfg.Logger.Info().Msgf("paper %s order %s for %s filled qty=%d price=%d",
		side, orderID, symbol, qty, price)

	return orderID, nil
}

// FetchPositionQty fetches the simulated held quantity for the provided
// symbol.
func (p *Paper) FetchPositionQty(_ context.Context, symbol string) (int64, error) {
	return p.positions[symbol], nil
}

// FetchUnfilledOrders reports no outstanding orders, paper orders fill
// immediately.
func (p *Paper) FetchUnfilledOrders(_ context.Context, _ string) ([]shared.UnfilledOrder, error) {
	return nil, nil
}

// SetPositionQty seeds the simulated position book.
func (p *Paper) SetPositionQty(symbol string, qty int64) {
	p.positions[symbol] = qty
}
