package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/jyhan/lwtrader/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traderCfg := service.TraderConfig{
		Symbol:              cfg.Symbol,
		K:                   cfg.K,
		Budget:              int64(cfg.Budget),
		TickInterval:        time.Duration(cfg.TickSec) * time.Second,
		Paper:               cfg.Paper,
		StateFilepath:       cfg.StateFilepath,
		BrokerBaseURL:       cfg.BrokerBaseURL,
		BrokerAppKey:        cfg.BrokerAppKey,
		BrokerAppSecret:     cfg.BrokerAppSecret,
		BrokerAccessToken:   cfg.BrokerAccessToken,
		BrokerAccount:       cfg.BrokerAccount,
		FillFeedURL:         cfg.FillFeedURL,
		FillFeedApprovalKey: cfg.FillFeedApprovalKey,
		SMTPHost:            cfg.SMTPHost,
		SMTPPort:            cfg.SMTPPort,
		SMTPUser:            cfg.SMTPUser,
		SMTPPass:            cfg.SMTPPass,
		EmailTo:             cfg.EmailTo,
		JournalEndpoint:     cfg.JournalEndpoint,
		JournalUser:         cfg.JournalUser,
		JournalPass:         cfg.JournalPass,
		Holidays:            cfg.Holidays,
		Cancel:              cancel,
	}
	trader, err := service.NewTrader(ctx, &traderCfg)
	if err != nil {
		log.Printf("creating trader service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	trader.Run(ctx)
}
