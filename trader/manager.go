package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jyhan/lwtrader/shared"
	"github.com/jyhan/lwtrader/state"
	"github.com/jyhan/lwtrader/strategy"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// defaultTickInterval is the default strategy evaluation period.
	defaultTickInterval = time.Second * 5
	// breakoutBarCount is the number of daily bars fetched for breakout
	// derivation.
	breakoutBarCount = 5

	// sellRollReason is recorded when a pending sell is deferred past a
	// non-trading day.
	sellRollReason = "holiday_or_closed"
)

// ManagerConfig represents the trader manager configuration.
type ManagerConfig struct {
	// Symbol is the traded symbol.
	Symbol string
	// K is the breakout multiplier.
	K float64
	// Budget is the cash ceiling for buy sizing.
	Budget int64
	// TickInterval is the strategy evaluation period.
	TickInterval time.Duration
	// Paper marks orders as simulated.
	Paper bool
	// Market represents the market data gateway.
	Market shared.MarketDataGateway
	// Orders represents the order gateway.
	Orders shared.OrderGateway
	// Calendar represents the trading calendar.
	Calendar shared.TradingCalendar
	// Notifier delivers best-effort trade notifications.
	Notifier shared.NotificationSink
	// RecordCycle persists the provided completed trade cycle. Optional.
	RecordCycle func(cycle *shared.TradeCycle) error
	// Store is the durable trading day state store.
	Store *state.Store
	// Now returns the current seoul time. Defaults to the wall clock.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.K <= 0 || cfg.K > strategy.MaxK {
		errs = errors.Join(errs, fmt.Errorf("breakout multiplier %v out of range (0, %v]", cfg.K, strategy.MaxK))
	}
	if cfg.Budget <= 0 {
		errs = errors.Join(errs, fmt.Errorf("budget must be positive, got %d", cfg.Budget))
	}
	if cfg.Market == nil {
		errs = errors.Join(errs, fmt.Errorf("market data gateway cannot be nil"))
	}
	if cfg.Orders == nil {
		errs = errors.Join(errs, fmt.Errorf("order gateway cannot be nil"))
	}
	if cfg.Calendar == nil {
		errs = errors.Join(errs, fmt.Errorf("trading calendar cannot be nil"))
	}
	if cfg.Notifier == nil {
		errs = errors.Join(errs, fmt.Errorf("notification sink cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("state store cannot be nil"))
	}

	return errs
}

// Manager drives the once-per-day breakout buy, the next-open sell and the
// fill reconciliation for a single symbol. All state access happens on the
// Run loop goroutine: ticks, fill confirmations, manual requests and cache
// invalidations are sequenced through the same select, so no transition can
// race another.
type Manager struct {
	cfg  *ManagerConfig
	calc *strategy.Calculator

	fillEvents        chan shared.FillEvent
	sellAllRequests   chan *shared.SellAllRequest
	summaryRequests   chan *shared.SummaryRequest
	invalidateSignals chan struct{}

	lastPrice     int64
	lastVolume    int64
	lastSignal    string
	refreshToggle uint64
}

// NewManager initializes a new trader manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			now, _, err := shared.SeoulTime()
			if err != nil {
				cfg.Logger.Error().Msgf("fetching seoul time: %v", err)
				return time.Now()
			}
			return now
		}
	}

	mgr := &Manager{
		cfg:               cfg,
		calc:              strategy.NewCalculator(),
		fillEvents:        make(chan shared.FillEvent, bufferSize),
		sellAllRequests:   make(chan *shared.SellAllRequest, bufferSize),
		summaryRequests:   make(chan *shared.SummaryRequest, bufferSize),
		invalidateSignals: make(chan struct{}, 1),
	}

	return mgr, nil
}

// SendFillEvent relays the provided fill confirmation for processing.
func (m *Manager) SendFillEvent(event shared.FillEvent) {
	select {
	case m.fillEvents <- event:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("fill event channel at capacity: %d/%d",
			len(m.fillEvents), bufferSize)
	}
}

// SendSellAllRequest relays the provided manual sell-all request for
// processing.
func (m *Manager) SendSellAllRequest(req *shared.SellAllRequest) {
	select {
	case m.sellAllRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("sell-all request channel at capacity: %d/%d",
			len(m.sellAllRequests), bufferSize)
	}
}

// SendSummaryRequest relays the provided summary request for processing.
func (m *Manager) SendSummaryRequest(req *shared.SummaryRequest) {
	select {
	case m.summaryRequests <- req:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("summary request channel at capacity: %d/%d",
			len(m.summaryRequests), bufferSize)
	}
}

// InvalidateBreakout schedules a breakout cache invalidation on the run
// loop. Safe to call from job scheduler goroutines.
func (m *Manager) InvalidateBreakout() {
	select {
	case m.invalidateSignals <- struct{}{}:
		// do nothing.
	default:
		// an invalidation is already pending.
	}
}

// persist rewrites the durable state document.
func (m *Manager) persist() error {
	err := m.cfg.Store.Save()
	if err != nil {
		return fmt.Errorf("persisting state: %w", err)
	}

	return nil
}

// refreshAccount alternates between the unfilled order and position queries
// each tick to spread request rate pressure on the brokerage. The results
// only warm account caches, failures are logged and do not end the tick.
func (m *Manager) refreshAccount(ctx context.Context) {
	defer func() { m.refreshToggle++ }()

	switch m.refreshToggle % 2 {
	case 0:
		orders, err := m.cfg.Orders.FetchUnfilledOrders(ctx, m.cfg.Symbol)
		if err != nil {
			m.cfg.Logger.Error().Msgf("refreshing unfilled orders: %v", err)
			return
		}
		m.cfg.Logger.Debug().Msgf("unfilled orders for %s: %d", m.cfg.Symbol, len(orders))
	default:
		qty, err := m.cfg.Orders.FetchPositionQty(ctx, m.cfg.Symbol)
		if err != nil {
			m.cfg.Logger.Error().Msgf("refreshing position: %v", err)
			return
		}
		m.cfg.Logger.Debug().Msgf("position for %s: %d", m.cfg.Symbol, qty)
	}
}

// rollPendingSell advances a due pending sell past a non-trading day. It
// reports whether the schedule moved, in which case sell evaluation is done
// for this tick.
func (m *Manager) rollPendingSell(ctx context.Context, st *state.TradingDayState, now time.Time) (bool, error) {
	if st.PendingSellDate == "" || st.PendingSellDate != shared.DayKey(now) {
		return false, nil
	}

	open, err := m.cfg.Calendar.IsTradingDay(ctx, now)
	if err != nil {
		return false, fmt.Errorf("checking trading day: %w", err)
	}
	if open {
		return false, nil
	}

	next := shared.NextCalendarDay(now)
	if !st.RollPendingSell(next, sellRollReason) {
		return false, nil
	}

	if err := m.persist(); err != nil {
		return true, err
	}

	m.cfg.Logger.Info().Msgf("rolled pending sell for %s to %s (%s)",
		st.Symbol, st.PendingSellDate, sellRollReason)

	return true, nil
}

// evaluateSell runs the next-open sell check for the tick.
func (m *Manager) evaluateSell(ctx context.Context, st *state.TradingDayState, now time.Time) error {
	if st.PendingSellDate == "" || st.PendingSellDate != shared.DayKey(now) {
		return nil
	}

	within, err := shared.IsWithinSession(now)
	if err != nil {
		return err
	}
	if !within {
		return nil
	}

	reached, err := shared.HasReached(now, shared.NextOpenSellTime)
	if err != nil {
		return err
	}
	if !reached {
		return nil
	}

	if st.SellState == shared.IntentSent || st.SellState == shared.Filled {
		return nil
	}

	qty, err := m.cfg.Orders.FetchPositionQty(ctx, st.Symbol)
	if err != nil {
		return fmt.Errorf("querying position for sell: %w", err)
	}

	if qty <= 0 {
		st.MarkSellSkipped(shared.SkipNoPosition)
		if err := m.persist(); err != nil {
			return err
		}

		m.cfg.Logger.Info().Msgf("sell skipped for %s: no position", st.Symbol)
		return nil
	}

	orderID, err := m.cfg.Orders.SendOrder(ctx, shared.Sell, st.Symbol, qty)
	if err != nil {
		return fmt.Errorf("sending sell order: %w", err)
	}

	st.MarkSellSent(orderID, qty, now.Format(shared.SessionTimeLayout), m.cfg.Paper)
	if err := m.persist(); err != nil {
		return err
	}

	m.cfg.Logger.Info().Msgf("sell sent for %s: order=%s qty=%d", st.Symbol, orderID, qty)

	return nil
}

// evaluateBuy runs the breakout buy check for the tick.
func (m *Manager) evaluateBuy(ctx context.Context, st *state.TradingDayState, now time.Time, snapshot *shared.MarketSnapshot) error {
	within, err := shared.IsWithinSession(now)
	if err != nil {
		return err
	}
	if !within {
		m.lastSignal = "WAIT(closed)"
		return nil
	}

	day := shared.DayKey(now)

	// At most one buy decision per day.
	if st.BuyDecisionDate == day {
		return nil
	}

	held, err := m.cfg.Orders.FetchPositionQty(ctx, st.Symbol)
	if err != nil {
		return fmt.Errorf("querying position for buy: %w", err)
	}

	if held > 0 {
		st.MarkBuySkipped(shared.SkipAlreadyHolding, day)
		if err := m.persist(); err != nil {
			return err
		}

		m.cfg.Logger.Info().Msgf("buy skipped for %s: already holding %d", st.Symbol, held)
		return nil
	}

	breakout, ok := m.calc.Cached(day, m.cfg.K)
	if !ok {
		bars, err := m.cfg.Market.FetchDailyBars(ctx, st.Symbol, breakoutBarCount)
		if err != nil {
			return fmt.Errorf("fetching daily bars: %w", err)
		}

		breakout, err = m.calc.Compute(bars, m.cfg.K, day)
		switch {
		case errors.Is(err, strategy.ErrInsufficientHistory):
			// Retried next tick.
			m.cfg.Logger.Info().Msgf("breakout unavailable for %s: %v", st.Symbol, err)
			return nil
		case err != nil:
			return fmt.Errorf("computing breakout: %w", err)
		}

		st.BreakoutPrice = breakout
		st.K = m.cfg.K
		st.BudgetAmount = m.cfg.Budget
		if err := m.persist(); err != nil {
			return err
		}
	}

	if snapshot.Price < breakout {
		m.lastSignal = "WAIT"
		return nil
	}
	m.lastSignal = "BREAKOUT"

	qty := strategy.QuantityForBudget(snapshot.Price, m.cfg.Budget)
	if qty <= 0 {
		// No decision recorded, the budget cannot cover a single share.
		m.cfg.Logger.Info().Msgf("breakout hit for %s but budget %d cannot cover price %d",
			st.Symbol, m.cfg.Budget, snapshot.Price)
		return nil
	}

	orderID, err := m.cfg.Orders.SendOrder(ctx, shared.Buy, st.Symbol, qty)
	if err != nil {
		return fmt.Errorf("sending buy order: %w", err)
	}

	st.MarkBuySent(orderID, snapshot.Price, qty, day, now.Format(shared.SessionTimeLayout), m.cfg.Paper)
	if err := m.persist(); err != nil {
		return err
	}

	m.cfg.Logger.Info().Msgf("buy sent for %s: order=%s qty=%d price=%d breakout=%d next-open sell %s",
		st.Symbol, orderID, qty, snapshot.Price, breakout, st.PendingSellDate)

	return nil
}

// handleTick runs one full evaluation cycle. Any gateway failure ends the
// tick at its boundary with the durable state untouched by the failed step,
// the next tick retries from scratch.
func (m *Manager) handleTick(ctx context.Context) {
	now := m.cfg.Now()
	st := m.cfg.Store.State(m.cfg.Symbol)

	m.refreshAccount(ctx)

	snapshot, err := m.cfg.Market.FetchQuote(ctx, m.cfg.Symbol)
	if err != nil {
		m.cfg.Logger.Error().Msgf("tick aborted fetching quote: %v", err)
		return
	}

	m.lastPrice = snapshot.Price
	m.lastVolume = snapshot.Volume

	rolled, err := m.rollPendingSell(ctx, st, now)
	if err != nil {
		m.cfg.Logger.Error().Msgf("tick aborted rolling pending sell: %v", err)
		return
	}

	if !rolled {
		if err := m.evaluateSell(ctx, st, now); err != nil {
			m.cfg.Logger.Error().Msgf("tick aborted evaluating sell: %v", err)
			return
		}
	}

	if err := m.evaluateBuy(ctx, st, now, snapshot); err != nil {
		m.cfg.Logger.Error().Msgf("tick aborted evaluating buy: %v", err)
		return
	}
}

// fillNotification renders the notification body for a filled leg.
func (m *Manager) fillNotification(st *state.TradingDayState, event shared.FillEvent, side shared.OrderSide) string {
	return fmt.Sprintf("Time: %s\nType: FILLED\nSide: %s\nSymbol: %s\nOrderNo: %s\n"+
		"OrderQty: %d\nFillPrice: %d\n\n[Market Snapshot]\nLastPrice: %d\nLastVolume: %d\n\n"+
		"[Strategy]\nk: %.1f\nBudget: %d\nBreakoutPrice: %d\nPendingSellDate: %s\n",
		m.cfg.Now().Format(time.RFC3339), side, st.Symbol, event.OrderID,
		event.OrderQty, event.FillPrice, m.lastPrice, m.lastVolume,
		m.cfg.K, m.cfg.Budget, st.BreakoutPrice, st.PendingSellDate)
}

// handleFillEvent reconciles the provided fill confirmation against the
// recorded intents. Unknown order ids and repeat deliveries are no-ops.
func (m *Manager) handleFillEvent(event shared.FillEvent) {
	if event.UnfilledQty != 0 {
		// Partial fill, wait for the full confirmation.
		return
	}

	st := m.cfg.Store.State(m.cfg.Symbol)

	switch {
	case event.OrderID == st.BuyOrderID && st.BuyState == shared.IntentSent:
		st.MarkBuyFilled(event.FillPrice)
		if err := m.persist(); err != nil {
			m.cfg.Logger.Error().Msgf("persisting buy fill: %v", err)
		}

		m.cfg.Logger.Info().Msgf("buy filled for %s: order=%s price=%d",
			st.Symbol, event.OrderID, event.FillPrice)
		m.cfg.Notifier.Notify(fmt.Sprintf("[AUTO TRADE] BUY FILLED %s", st.Symbol),
			m.fillNotification(st, event, shared.Buy))

	case event.OrderID == st.SellOrderID && st.SellState == shared.IntentSent:
		st.MarkSellFilled(event.FillPrice)
		if err := m.persist(); err != nil {
			m.cfg.Logger.Error().Msgf("persisting sell fill: %v", err)
		}

		m.cfg.Logger.Info().Msgf("sell filled for %s: order=%s price=%d",
			st.Symbol, event.OrderID, event.FillPrice)
		m.cfg.Notifier.Notify(fmt.Sprintf("[AUTO TRADE] SELL FILLED %s", st.Symbol),
			m.fillNotification(st, event, shared.Sell))

		m.recordCycle(st, event)

	default:
		m.cfg.Logger.Debug().Msgf("ignoring fill for %s: order=%s unknown or already settled",
			st.Symbol, event.OrderID)
	}
}

// recordCycle persists the completed round trip to the journal, best effort.
func (m *Manager) recordCycle(st *state.TradingDayState, event shared.FillEvent) {
	if m.cfg.RecordCycle == nil {
		return
	}

	buyPrice := st.BuyFillPrice
	if buyPrice == 0 {
		buyPrice = st.BuySnapshotPrice
	}

	cycle := &shared.TradeCycle{
		Symbol:    st.Symbol,
		BuyDate:   st.BuyDecisionDate,
		BuyPrice:  buyPrice,
		Qty:       st.SellQty,
		SellDate:  shared.DayKey(m.cfg.Now()),
		SellPrice: event.FillPrice,
	}

	if err := m.cfg.RecordCycle(cycle); err != nil {
		m.cfg.Logger.Error().Msgf("recording trade cycle: %v", err)
	}
}

// handleSellAll processes a manual request to liquidate the full position.
// The day state is not touched, the fill feed reconciles nothing for manual
// orders and the per-day decision guards stay intact.
func (m *Manager) handleSellAll(ctx context.Context, req *shared.SellAllRequest) {
	symbol := req.Symbol
	if symbol == "" {
		symbol = m.cfg.Symbol
	}

	qty, err := m.cfg.Orders.FetchPositionQty(ctx, symbol)
	if err != nil {
		req.Response <- fmt.Errorf("querying position: %w", err)
		return
	}

	if qty <= 0 {
		req.Response <- fmt.Errorf("no position held for %s", symbol)
		return
	}

	orderID, err := m.cfg.Orders.SendOrder(ctx, shared.Sell, symbol, qty)
	if err != nil {
		req.Response <- fmt.Errorf("sending sell-all order: %w", err)
		return
	}

	m.cfg.Logger.Info().Msgf("manual sell-all sent for %s: order=%s qty=%d", symbol, orderID, qty)
	req.Response <- nil
}

// summary builds the derived per-tick summary for the symbol.
func (m *Manager) summary() shared.Summary {
	st := m.cfg.Store.State(m.cfg.Symbol)
	day := shared.DayKey(m.cfg.Now())

	breakout, _ := m.calc.Cached(day, m.cfg.K)

	return shared.Summary{
		Symbol:        st.Symbol,
		Price:         m.lastPrice,
		Volume:        m.lastVolume,
		BreakoutPrice: breakout,
		Signal:        m.lastSignal,
		AutoQty:       strategy.QuantityForBudget(m.lastPrice, m.cfg.Budget),
		BuyState:      st.BuyState,
		SellState:     st.SellState,
		PendingSell:   st.PendingSellDate,
	}
}

// Run manages the lifecycle processes of the trader manager.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.handleTick(ctx)
		case event := <-m.fillEvents:
			m.handleFillEvent(event)
		case <-m.invalidateSignals:
			m.calc.Invalidate()
		case req := <-m.sellAllRequests:
			m.handleSellAll(ctx, req)
		case req := <-m.summaryRequests:
			req.Response <- m.summary()
		}
	}
}
