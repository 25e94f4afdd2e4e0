package calendar

import (
	"context"
	"time"

	"github.com/jyhan/lwtrader/shared"
	"github.com/rs/zerolog"
)

// probeBarCount is the number of daily bars requested when probing whether
// the exchange printed a bar for the queried date.
const probeBarCount = 5

// ProbeConfig represents the configuration for the bar-probe calendar.
type ProbeConfig struct {
	// Symbol is the symbol whose daily bars are probed.
	Symbol string
	// Market represents the market data gateway.
	Market shared.MarketDataGateway
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Probe answers trading day queries by checking whether the brokerage has a
// daily bar for the queried date. The answer is cached per day so the probe
// runs at most once per calendar day.
type Probe struct {
	cfg       *ProbeConfig
	cachedDay string
	cachedOn  bool
}

// Ensure the probe calendar implements the TradingCalendar interface.
var _ shared.TradingCalendar = (*Probe)(nil)

// NewProbe initializes a new bar-probe calendar.
func NewProbe(cfg *ProbeConfig) *Probe {
	return &Probe{cfg: cfg}
}

// IsTradingDay checks whether the provided date is a trading day. A failed
// probe reports a non-trading day without caching, so the next query retries.
func (p *Probe) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	day := shared.DayKey(date)
	if p.cachedDay == day {
		return p.cachedOn, nil
	}

	bars, err := p.cfg.Market.FetchDailyBars(ctx, p.cfg.Symbol, probeBarCount)
	if err != nil {
		p.cfg.Logger.Error().Msgf("probing daily bars for %s: %v", p.cfg.Symbol, err)
		return false, err
	}

	var open bool
	for idx := range bars {
		if shared.DayKey(bars[idx].Date) == day {
			open = true
			break
		}
	}

	p.cachedDay = day
	p.cachedOn = open

	return open, nil
}

// Static answers trading day queries from a fixed holiday set: weekends and
// listed holidays are non-trading days, everything else trades.
type Static struct {
	holidays map[string]struct{}
}

// Ensure the static calendar implements the TradingCalendar interface.
var _ shared.TradingCalendar = (*Static)(nil)

// NewStatic initializes a static calendar from the provided holiday day
// keys (yyyymmdd).
func NewStatic(holidays []string) *Static {
	set := make(map[string]struct{}, len(holidays))
	for _, day := range holidays {
		set[day] = struct{}{}
	}

	return &Static{holidays: set}
}

// IsTradingDay checks whether the provided date is a trading day.
func (c *Static) IsTradingDay(_ context.Context, date time.Time) (bool, error) {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false, nil
	}

	if _, ok := c.holidays[shared.DayKey(date)]; ok {
		return false, nil
	}

	return true, nil
}
