package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jyhan/lwtrader/calendar"
	"github.com/jyhan/lwtrader/fetch"
	"github.com/jyhan/lwtrader/journal"
	"github.com/jyhan/lwtrader/notify"
	"github.com/jyhan/lwtrader/shared"
	"github.com/jyhan/lwtrader/state"
	"github.com/jyhan/lwtrader/trader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// invalidateJobTime is when the daily breakout invalidation job runs.
	invalidateJobTime = "00:05"
	// summaryJobTime is when the post-close summary notification job runs.
	summaryJobTime = "15:40"
	// summaryTimeout bounds the wait for a summary response.
	summaryTimeout = time.Second * 10
)

// TraderConfig represents the configuration struct for the trader service.
type TraderConfig struct {
	// Symbol is the traded symbol.
	Symbol string
	// K is the breakout multiplier.
	K float64
	// Budget is the cash ceiling for buy sizing.
	Budget int64
	// TickInterval is the strategy evaluation period.
	TickInterval time.Duration
	// Paper toggles the simulated order gateway.
	Paper bool
	// StateFilepath is the filepath of the persisted trading state.
	StateFilepath string
	// BrokerBaseURL is the brokerage REST endpoint.
	BrokerBaseURL string
	// BrokerAppKey is the issued brokerage application key.
	BrokerAppKey string
	// BrokerAppSecret is the issued brokerage application secret.
	BrokerAppSecret string
	// BrokerAccessToken is the issued brokerage OAuth access token.
	BrokerAccessToken string
	// BrokerAccount is the brokerage cash account number.
	BrokerAccount string
	// FillFeedURL is the brokerage execution notice websocket endpoint.
	FillFeedURL string
	// FillFeedApprovalKey is the issued websocket approval key.
	FillFeedApprovalKey string
	// SMTPHost is the notification smtp host.
	SMTPHost string
	// SMTPPort is the notification smtp port.
	SMTPPort int
	// SMTPUser is the notification smtp user and sender address.
	SMTPUser string
	// SMTPPass is the notification smtp app password.
	SMTPPass string
	// EmailTo is the set of notification recipients.
	EmailTo []string
	// JournalEndpoint is the trade journal database endpoint. Optional.
	JournalEndpoint string
	// JournalUser is the trade journal database user.
	JournalUser string
	// JournalPass is the trade journal database user pass.
	JournalPass string
	// Holidays is an optional set of exchange holiday day keys (yyyymmdd).
	// When provided the static calendar replaces the bar-probe calendar.
	Holidays []string
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *TraderConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("no symbol provided for trader service"))
	}
	if cfg.StateFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("state filepath cannot be an empty string"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}
	if cfg.BrokerAppKey == "" || cfg.BrokerAppSecret == "" || cfg.BrokerAccessToken == "" {
		errs = errors.Join(errs, fmt.Errorf("brokerage credentials are required for market data"))
	}
	if cfg.BrokerAccount == "" {
		errs = errors.Join(errs, fmt.Errorf("brokerage account cannot be an empty string"))
	}
	if !cfg.Paper && cfg.FillFeedURL == "" {
		errs = errors.Join(errs, fmt.Errorf("fill feed url cannot be an empty string for live trading"))
	}

	return errs
}

// Trader represents the breakout trading service.
type Trader struct {
	cfg          *TraderConfig
	traderMgr    *trader.Manager
	fillFeed     *fetch.FillFeed
	paperGateway *fetch.Paper
	jobScheduler *gocron.Scheduler
	mailer       *notify.Mailer
	logger       *zerolog.Logger
	wg           sync.WaitGroup
}

// NewTrader initializes a new trader service.
func NewTrader(ctx context.Context, cfg *TraderConfig) (*Trader, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "trader").Logger()

	_, loc, err := shared.SeoulTime()
	if err != nil {
		return nil, fmt.Errorf("fetching seoul time: %v", err)
	}

	storeLogger := logger.With().Str("component", "statestore").Logger()
	store, err := state.NewStore(&state.StoreConfig{
		Path:   cfg.StateFilepath,
		Logger: &storeLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating state store: %v", err)
	}

	mailerLogger := logger.With().Str("component", "mailer").Logger()
	mailer := notify.NewMailer(&notify.MailerConfig{
		Host:   cfg.SMTPHost,
		Port:   cfg.SMTPPort,
		User:   cfg.SMTPUser,
		Pass:   cfg.SMTPPass,
		To:     cfg.EmailTo,
		Logger: &mailerLogger,
	})

	var market shared.MarketDataGateway
	var orders shared.OrderGateway
	var paperGateway *fetch.Paper
	var fillFeed *fetch.FillFeed

	// Paper mode still quotes prices and daily bars off the brokerage.
	kis, err := fetch.NewKISClient(&fetch.KISConfig{
		BaseURL:     cfg.BrokerBaseURL,
		AppKey:      cfg.BrokerAppKey,
		AppSecret:   cfg.BrokerAppSecret,
		AccessToken: cfg.BrokerAccessToken,
		Account:     cfg.BrokerAccount,
	})
	if err != nil {
		return nil, fmt.Errorf("creating brokerage client: %v", err)
	}

	market = kis

	switch {
	case cfg.Paper:
		paperLogger := logger.With().Str("component", "papergateway").Logger()
		paperGateway = fetch.NewPaper(&fetch.PaperConfig{
			Market: market,
			Logger: &paperLogger,
		})
		orders = paperGateway
	default:
		orders = kis
	}

	var calendarGateway shared.TradingCalendar
	switch {
	case len(cfg.Holidays) > 0:
		calendarGateway = calendar.NewStatic(cfg.Holidays)
	default:
		probeLogger := logger.With().Str("component", "calendarprobe").Logger()
		calendarGateway = calendar.NewProbe(&calendar.ProbeConfig{
			Symbol: cfg.Symbol,
			Market: market,
			Logger: &probeLogger,
		})
	}

	var recordCycle func(cycle *shared.TradeCycle) error
	if cfg.JournalEndpoint != "" {
		journalLogger := logger.With().Str("component", "journal").Logger()
		tradeJournal, err := journal.NewJournal(ctx, &journal.JournalConfig{
			Endpoint: cfg.JournalEndpoint,
			User:     cfg.JournalUser,
			Pass:     cfg.JournalPass,
			Logger:   &journalLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating trade journal: %v", err)
		}

		recordCycle = func(cycle *shared.TradeCycle) error {
			return tradeJournal.PersistCycle(ctx, cycle)
		}
	}

	traderLogger := logger.With().Str("component", "tradermanager").Logger()
	traderMgr, err := trader.NewManager(&trader.ManagerConfig{
		Symbol:       cfg.Symbol,
		K:            cfg.K,
		Budget:       cfg.Budget,
		TickInterval: cfg.TickInterval,
		Paper:        cfg.Paper,
		Market:       market,
		Orders:       orders,
		Calendar:     calendarGateway,
		Notifier:     mailer,
		RecordCycle:  recordCycle,
		Store:        store,
		Logger:       &traderLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating trader manager: %v", err)
	}

	if !cfg.Paper {
		fillFeedLogger := logger.With().Str("component", "fillfeed").Logger()
		fillFeed, err = fetch.NewFillFeed(&fetch.FillFeedConfig{
			URL:           cfg.FillFeedURL,
			ApprovalKey:   cfg.FillFeedApprovalKey,
			AccountID:     cfg.BrokerAccount,
			SendFillEvent: traderMgr.SendFillEvent,
			Logger:        &fillFeedLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating fill feed: %v", err)
		}
	}

	jobScheduler := gocron.NewScheduler(loc)

	service := &Trader{
		cfg:          cfg,
		traderMgr:    traderMgr,
		fillFeed:     fillFeed,
		paperGateway: paperGateway,
		jobScheduler: jobScheduler,
		mailer:       mailer,
		logger:       &logger,
	}

	_, err = jobScheduler.Every(1).Day().At(invalidateJobTime).Do(func() {
		traderMgr.InvalidateBreakout()
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling breakout invalidation job: %v", err)
	}

	_, err = jobScheduler.Every(1).Day().At(summaryJobTime).Do(service.sendDailySummary)
	if err != nil {
		return nil, fmt.Errorf("scheduling daily summary job: %v", err)
	}

	return service, nil
}

// sendDailySummary fetches the current trading summary and mails it out.
func (t *Trader) sendDailySummary() {
	req := shared.NewSummaryRequest()
	t.traderMgr.SendSummaryRequest(req)

	select {
	case summary := <-req.Response:
		body := fmt.Sprintf("Symbol: %s\nPrice: %d\nVolume: %d\nBreakoutPrice: %d\n"+
			"Signal: %s\nAutoQty: %d\nBuyState: %s\nSellState: %s\nPendingSellDate: %s\n",
			summary.Symbol, summary.Price, summary.Volume, summary.BreakoutPrice,
			summary.Signal, summary.AutoQty, summary.BuyState, summary.SellState,
			summary.PendingSell)
		t.mailer.Notify(fmt.Sprintf("[AUTO TRADE] Daily summary %s", summary.Symbol), body)
	case <-time.After(summaryTimeout):
		t.logger.Error().Msg("timed out waiting for daily summary")
	}
}

// SellAll requests liquidation of the full position for the traded symbol.
func (t *Trader) SellAll() error {
	req := shared.NewSellAllRequest(t.cfg.Symbol)
	t.traderMgr.SendSellAllRequest(req)

	return <-req.Response
}

// Run handles the lifecycle processes of the trader service.
func (t *Trader) Run(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		t.traderMgr.Run(ctx)
		t.wg.Done()
	}()

	switch {
	case t.cfg.Paper:
		// Paper fills are pumped into the trader the same way the live
		// feed delivers them.
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case event := <-t.paperGateway.Fills():
					t.traderMgr.SendFillEvent(event)
				}
			}
		}()
	default:
		t.wg.Add(1)
		go func() {
			t.fillFeed.Run(ctx)
			t.wg.Done()
		}()
	}

	t.jobScheduler.StartAsync()
	defer t.jobScheduler.Stop()

	t.wg.Wait()
}
