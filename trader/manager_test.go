package trader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jyhan/lwtrader/shared"
	"github.com/jyhan/lwtrader/state"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// fakeGateway implements the market data and order gateways with pluggable
// behaviour.
type fakeGateway struct {
	quote       func(ctx context.Context, symbol string) (*shared.MarketSnapshot, error)
	bars        func(ctx context.Context, symbol string, count int) ([]shared.Candlestick, error)
	positionQty func(ctx context.Context, symbol string) (int64, error)

	mtx    sync.Mutex
	orders []sentOrder
}

type sentOrder struct {
	side   shared.OrderSide
	symbol string
	qty    int64
}

func (f *fakeGateway) FetchQuote(ctx context.Context, symbol string) (*shared.MarketSnapshot, error) {
	return f.quote(ctx, symbol)
}

func (f *fakeGateway) FetchDailyBars(ctx context.Context, symbol string, count int) ([]shared.Candlestick, error) {
	if f.bars == nil {
		return nil, nil
	}
	return f.bars(ctx, symbol, count)
}

func (f *fakeGateway) SendOrder(_ context.Context, side shared.OrderSide, symbol string, qty int64) (string, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.orders = append(f.orders, sentOrder{side: side, symbol: symbol, qty: qty})
	return "order-" + string(rune('a'+len(f.orders)-1)), nil
}

func (f *fakeGateway) FetchPositionQty(ctx context.Context, symbol string) (int64, error) {
	if f.positionQty == nil {
		return 0, nil
	}
	return f.positionQty(ctx, symbol)
}

func (f *fakeGateway) FetchUnfilledOrders(_ context.Context, _ string) ([]shared.UnfilledOrder, error) {
	return nil, nil
}

func (f *fakeGateway) sentOrders() []sentOrder {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	return append([]sentOrder(nil), f.orders...)
}

// fakeCalendar answers trading day queries from a set of closed day keys.
type fakeCalendar struct {
	closed map[string]bool
}

func (f *fakeCalendar) IsTradingDay(_ context.Context, date time.Time) (bool, error) {
	return !f.closed[shared.DayKey(date)], nil
}

// fakeNotifier records delivered notifications.
type fakeNotifier struct {
	subjects []string
}

func (f *fakeNotifier) Notify(subject string, _ string) {
	f.subjects = append(f.subjects, subject)
}

// fakeClock is an adjustable time source.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func seoulDate(t *testing.T, year int, month time.Month, day, hour, min, sec int) time.Time {
	t.Helper()

	loc, err := time.LoadLocation(shared.SeoulLocation)
	assert.NoError(t, err)

	return time.Date(year, month, day, hour, min, sec, 0, loc)
}

func testStore(t *testing.T) *state.Store {
	t.Helper()

	store, err := state.NewStore(&state.StoreConfig{
		Path:   filepath.Join(t.TempDir(), "state.json"),
		Logger: &log.Logger,
	})
	assert.NoError(t, err)

	return store
}

// defaultBars yields a prior session of 10500/9500 and a current open of
// 10000, which derives a breakout of 10500 at k = 0.5.
func defaultBars(t *testing.T) []shared.Candlestick {
	t.Helper()

	return []shared.Candlestick{
		{Symbol: "122630", Open: 10000, High: 10500, Low: 9500, Close: 10200,
			Date: seoulDate(t, 2026, time.March, 2, 0, 0, 0)},
		{Symbol: "122630", Open: 10000, High: 10100, Low: 9900, Close: 10000,
			Date: seoulDate(t, 2026, time.March, 3, 0, 0, 0)},
	}
}

func newTestManager(t *testing.T, gateway *fakeGateway, calendar shared.TradingCalendar,
	notifier *fakeNotifier, clock *fakeClock) *Manager {
	t.Helper()

	mgr, err := NewManager(&ManagerConfig{
		Symbol:   "122630",
		K:        0.5,
		Budget:   1_000_000,
		Market:   gateway,
		Orders:   gateway,
		Calendar: calendar,
		Notifier: notifier,
		Store:    testStore(t),
		Now:      clock.Now,
		Logger:   &log.Logger,
	})
	assert.NoError(t, err)

	return mgr
}

func TestManagerConfigValidate(t *testing.T) {
	cfg := &ManagerConfig{}
	assert.Error(t, cfg.Validate())

	cfg = &ManagerConfig{
		Symbol:   "122630",
		K:        2.5,
		Budget:   1_000_000,
		Market:   &fakeGateway{},
		Orders:   &fakeGateway{},
		Calendar: &fakeCalendar{},
		Notifier: &fakeNotifier{},
		Store:    testStore(t),
		Logger:   &log.Logger,
	}

	// The multiplier is out of range.
	assert.Error(t, cfg.Validate())

	cfg.K = 0.5
	assert.NoError(t, cfg.Validate())
}

func TestBuyDecision(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10600, Volume: 1200}, nil
		},
		bars: func(_ context.Context, _ string, _ int) ([]shared.Candlestick, error) {
			return defaultBars(t), nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	mgr.handleTick(ctx)

	orders := gateway.sentOrders()
	assert.Equal(t, len(orders), 1)
	assert.Equal(t, orders[0].side, shared.Buy)
	assert.Equal(t, orders[0].qty, int64(94)) // 1,000,000 / 10,600

	st := mgr.cfg.Store.State("122630")
	assert.Equal(t, st.BuyState, shared.IntentSent)
	assert.Equal(t, st.BreakoutPrice, int64(10500))
	assert.Equal(t, st.BuyDecisionDate, "20260303")
	assert.Equal(t, st.PendingSellDate, "20260304")
	assert.Equal(t, st.BuyPaper, false)

	// One decision per day: further ticks must not re-order.
	mgr.handleTick(ctx)
	mgr.handleTick(ctx)
	assert.Equal(t, len(gateway.sentOrders()), 1)
}

func TestBuySkippedWhenHolding(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10600}, nil
		},
		positionQty: func(_ context.Context, _ string) (int64, error) {
			return 5, nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	mgr.handleTick(ctx)

	assert.Equal(t, len(gateway.sentOrders()), 0)

	st := mgr.cfg.Store.State("122630")
	assert.Equal(t, st.BuyState, shared.Skipped)
	assert.Equal(t, st.BuySkipReason, shared.SkipAlreadyHolding)
	assert.Equal(t, st.BuyDecisionDate, "20260303")
}

func TestBuyWaitsBelowBreakout(t *testing.T) {
	ctx := context.Background()
	price := int64(10400)
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: price}, nil
		},
		bars: func(_ context.Context, _ string, _ int) ([]shared.Candlestick, error) {
			return defaultBars(t), nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	// Below the threshold no decision is recorded, the day stays open.
	mgr.handleTick(ctx)
	st := mgr.cfg.Store.State("122630")
	assert.Equal(t, len(gateway.sentOrders()), 0)
	assert.Equal(t, st.BuyState, shared.None)
	assert.Equal(t, st.BuyDecisionDate, "")
	assert.Equal(t, mgr.lastSignal, "WAIT")

	// A later tick that crosses the threshold still buys the same day.
	price = 10500
	mgr.handleTick(ctx)
	assert.Equal(t, len(gateway.sentOrders()), 1)
	assert.Equal(t, mgr.lastSignal, "BREAKOUT")
}

func TestBuySkippedOutsideSession(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10600}, nil
		},
		bars: func(_ context.Context, _ string, _ int) ([]shared.Candlestick, error) {
			return defaultBars(t), nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 8, 30, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	mgr.handleTick(ctx)

	assert.Equal(t, len(gateway.sentOrders()), 0)
	assert.Equal(t, mgr.cfg.Store.State("122630").BuyDecisionDate, "")
}

func TestBuyNoDecisionWhenUnaffordable(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10600}, nil
		},
		bars: func(_ context.Context, _ string, _ int) ([]shared.Candlestick, error) {
			return defaultBars(t), nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)
	mgr.cfg.Budget = 9000

	mgr.handleTick(ctx)

	st := mgr.cfg.Store.State("122630")
	assert.Equal(t, len(gateway.sentOrders()), 0)
	assert.Equal(t, st.BuyState, shared.None)
	assert.Equal(t, st.BuyDecisionDate, "")
}

func TestSellAtNextOpen(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10700}, nil
		},
		positionQty: func(_ context.Context, _ string) (int64, error) {
			return 9, nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 4, 9, 0, 5)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	st := mgr.cfg.Store.State("122630")
	st.MarkBuySent("order-buy", 10600, 9, "20260303", "10:00:00", false)
	st.MarkBuyFilled(10600)

	// Before the sell gate the schedule holds. The tick also records an
	// already-holding buy skip for the new day.
	mgr.handleTick(ctx)
	assert.Equal(t, len(gateway.sentOrders()), 0)
	assert.Equal(t, st.SellState, shared.None)
	assert.Equal(t, st.BuySkipReason, shared.SkipAlreadyHolding)

	// At the gate the sell fires for the full held quantity.
	clock.now = seoulDate(t, 2026, time.March, 4, 9, 0, 10)
	mgr.handleTick(ctx)

	orders := gateway.sentOrders()
	assert.Equal(t, len(orders), 1)
	assert.Equal(t, orders[0].side, shared.Sell)
	assert.Equal(t, orders[0].qty, int64(9))
	assert.Equal(t, st.SellState, shared.IntentSent)
	assert.Equal(t, st.SellQty, int64(9))

	// The sent intent is not re-sent on further ticks.
	mgr.handleTick(ctx)
	assert.Equal(t, len(gateway.sentOrders()), 1)
}

func TestSellSkippedWithoutPosition(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10700}, nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 4, 9, 30, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	st := mgr.cfg.Store.State("122630")
	st.MarkBuySent("order-buy", 10600, 9, "20260303", "10:00:00", false)
	st.MarkBuyFilled(10600)

	mgr.handleTick(ctx)

	assert.Equal(t, st.SellState, shared.Skipped)
	assert.Equal(t, st.SellSkipReason, shared.SkipNoPosition)
	assert.Equal(t, st.PendingSellDate, "")

	sells := 0
	for _, order := range gateway.sentOrders() {
		if order.side == shared.Sell {
			sells++
		}
	}
	assert.Equal(t, sells, 0)
}

func TestPendingSellRollsPastHolidays(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10700}, nil
		},
		positionQty: func(_ context.Context, _ string) (int64, error) {
			return 9, nil
		},
	}
	calendar := &fakeCalendar{closed: map[string]bool{
		"20260304": true,
		"20260305": true,
	}}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 4, 9, 30, 0)}
	mgr := newTestManager(t, gateway, calendar, &fakeNotifier{}, clock)

	st := mgr.cfg.Store.State("122630")
	st.MarkBuySent("order-buy", 10600, 9, "20260303", "10:00:00", false)
	st.MarkBuyFilled(10600)
	assert.Equal(t, st.PendingSellDate, "20260304")

	// The due day is closed, the sell defers a day and nothing is sent.
	mgr.handleTick(ctx)
	assert.Equal(t, st.PendingSellDate, "20260305")
	assert.Equal(t, st.SellRollReason, "holiday_or_closed")
	assert.Equal(t, st.SellState, shared.None)

	// Repeated ticks on the same closed day do not roll further.
	mgr.handleTick(ctx)
	assert.Equal(t, st.PendingSellDate, "20260305")

	// The next day is closed too.
	clock.now = seoulDate(t, 2026, time.March, 5, 9, 30, 0)
	mgr.handleTick(ctx)
	assert.Equal(t, st.PendingSellDate, "20260306")

	// The sell finally fires on the first open day.
	clock.now = seoulDate(t, 2026, time.March, 6, 9, 30, 0)
	mgr.handleTick(ctx)
	assert.Equal(t, st.SellState, shared.IntentSent)

	sells := 0
	for _, order := range gateway.sentOrders() {
		if order.side == shared.Sell {
			sells++
		}
	}
	assert.Equal(t, sells, 1)
}

func TestFillReconciliation(t *testing.T) {
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, notifier, clock)

	st := mgr.cfg.Store.State("122630")
	st.MarkBuySent("order-buy", 10600, 9, "20260303", "10:00:00", false)

	// A partial fill is ignored.
	mgr.handleFillEvent(shared.FillEvent{OrderID: "order-buy", OrderQty: 9, UnfilledQty: 4, FillPrice: 10610})
	assert.Equal(t, st.BuyState, shared.IntentSent)
	assert.Equal(t, len(notifier.subjects), 0)

	// The full fill promotes the leg and notifies once.
	mgr.handleFillEvent(shared.FillEvent{OrderID: "order-buy", OrderQty: 9, UnfilledQty: 0, FillPrice: 10610})
	assert.Equal(t, st.BuyState, shared.Filled)
	assert.Equal(t, st.BuyFillPrice, int64(10610))
	assert.Equal(t, len(notifier.subjects), 1)

	// Repeat deliveries and unknown order ids are no-ops.
	mgr.handleFillEvent(shared.FillEvent{OrderID: "order-buy", OrderQty: 9, UnfilledQty: 0, FillPrice: 10610})
	mgr.handleFillEvent(shared.FillEvent{OrderID: "order-unknown", OrderQty: 3, UnfilledQty: 0, FillPrice: 9999})
	assert.Equal(t, len(notifier.subjects), 1)
}

func TestSellFillRecordsCycle(t *testing.T) {
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 4, 9, 0, 15)}

	var recorded []*shared.TradeCycle
	mgr := newTestManager(t, gateway, &fakeCalendar{}, notifier, clock)
	mgr.cfg.RecordCycle = func(cycle *shared.TradeCycle) error {
		recorded = append(recorded, cycle)
		return nil
	}

	st := mgr.cfg.Store.State("122630")
	st.MarkBuySent("order-buy", 10600, 9, "20260303", "10:00:00", false)
	st.MarkBuyFilled(10600)
	st.MarkSellSent("order-sell", 9, "09:00:10", false)

	mgr.handleFillEvent(shared.FillEvent{OrderID: "order-sell", OrderQty: 9, UnfilledQty: 0, FillPrice: 10700})

	assert.Equal(t, st.SellState, shared.Filled)
	assert.Equal(t, st.SellFillPrice, int64(10700))
	assert.Equal(t, st.PendingSellDate, "")
	assert.Equal(t, len(notifier.subjects), 1)

	assert.Equal(t, len(recorded), 1)
	want := &shared.TradeCycle{
		Symbol:    "122630",
		BuyDate:   "20260303",
		BuyPrice:  10600,
		Qty:       9,
		SellDate:  "20260304",
		SellPrice: 10700,
	}
	if diff := cmp.Diff(want, recorded[0]); diff != "" {
		t.Errorf("unexpected trade cycle (-want +got):\n%s", diff)
	}
	assert.Equal(t, recorded[0].PNL(), int64(900))
}

func TestTickAbortsOnQuoteFailure(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, _ string) (*shared.MarketSnapshot, error) {
			return nil, errors.New("gateway down")
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	st := mgr.cfg.Store.State("122630")
	st.MarkBuySent("order-buy", 10600, 9, "20260302", "10:00:00", false)
	before := *st

	mgr.handleTick(ctx)

	if diff := cmp.Diff(before, *st); diff != "" {
		t.Errorf("state mutated on aborted tick (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(gateway.sentOrders()), 0)
}

func TestManualSellAll(t *testing.T) {
	ctx := context.Background()
	position := int64(9)
	gateway := &fakeGateway{
		positionQty: func(_ context.Context, _ string) (int64, error) {
			return position, nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	req := shared.NewSellAllRequest("122630")
	mgr.handleSellAll(ctx, req)
	assert.NoError(t, <-req.Response)

	orders := gateway.sentOrders()
	assert.Equal(t, len(orders), 1)
	assert.Equal(t, orders[0].side, shared.Sell)
	assert.Equal(t, orders[0].qty, int64(9))

	// Liquidation does not touch the day state.
	st := mgr.cfg.Store.State("122630")
	assert.Equal(t, st.SellState, shared.None)

	// Without a position the request reports an error.
	position = 0
	req = shared.NewSellAllRequest("122630")
	mgr.handleSellAll(ctx, req)
	assert.Error(t, <-req.Response)
}

func TestSummaryRequest(t *testing.T) {
	ctx := context.Background()
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10600, Volume: 3400}, nil
		},
		bars: func(_ context.Context, _ string, _ int) ([]shared.Candlestick, error) {
			return defaultBars(t), nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	mgr.handleTick(ctx)

	summary := mgr.summary()
	assert.Equal(t, summary.Symbol, "122630")
	assert.Equal(t, summary.Price, int64(10600))
	assert.Equal(t, summary.Volume, int64(3400))
	assert.Equal(t, summary.BreakoutPrice, int64(10500))
	assert.Equal(t, summary.Signal, "BREAKOUT")
	assert.Equal(t, summary.BuyState, shared.IntentSent)
	assert.Equal(t, summary.PendingSell, "20260304")
}

func TestInvalidateBreakout(t *testing.T) {
	ctx := context.Background()
	barCalls := 0
	gateway := &fakeGateway{
		quote: func(_ context.Context, symbol string) (*shared.MarketSnapshot, error) {
			return &shared.MarketSnapshot{Symbol: symbol, Price: 10400}, nil
		},
		bars: func(_ context.Context, _ string, _ int) ([]shared.Candlestick, error) {
			barCalls++
			return defaultBars(t), nil
		},
	}
	clock := &fakeClock{now: seoulDate(t, 2026, time.March, 3, 10, 0, 0)}
	mgr := newTestManager(t, gateway, &fakeCalendar{}, &fakeNotifier{}, clock)

	// The breakout is derived once and served from cache after that.
	mgr.handleTick(ctx)
	mgr.handleTick(ctx)
	assert.Equal(t, barCalls, 1)

	mgr.calc.Invalidate()
	mgr.handleTick(ctx)
	assert.Equal(t, barCalls, 2)
}
