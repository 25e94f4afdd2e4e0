package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jyhan/lwtrader/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// fillFeedTrID is the execution notice subscription id.
	fillFeedTrID = "H0STCNI0"
	// reconnectDelay is the wait before redialing a dropped feed.
	reconnectDelay = time.Second * 5
)

// FillFeedConfig represents the configuration for the fill feed.
type FillFeedConfig struct {
	// URL is the brokerage websocket endpoint.
	URL string
	// ApprovalKey is the issued websocket approval key.
	ApprovalKey string
	// AccountID is the account receiving execution notices.
	AccountID string
	// SendFillEvent relays the provided fill event for processing.
	SendFillEvent func(event shared.FillEvent)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// FillFeed subscribes to the brokerage execution notice stream and forwards
// full-fill confirmations to the trader.
type FillFeed struct {
	cfg *FillFeedConfig
}

// NewFillFeed initializes a new fill feed.
func NewFillFeed(cfg *FillFeedConfig) (*FillFeed, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("fill feed url cannot be an empty string")
	}
	if cfg.SendFillEvent == nil {
		return nil, fmt.Errorf("fill feed relay cannot be nil")
	}

	return &FillFeed{cfg: cfg}, nil
}

// subscribeMessage renders the execution notice subscription request.
func (f *FillFeed) subscribeMessage() string {
	return fmt.Sprintf(`{"header":{"approval_key":%q,"custtype":"P","tr_type":"1","content-type":"utf-8"},`+
		`"body":{"input":{"tr_id":%q,"tr_key":%q}}}`,
		f.cfg.ApprovalKey, fillFeedTrID, f.cfg.AccountID)
}

// parseFillEvent decodes an execution notice payload into a fill event.
func parseFillEvent(data []byte) (shared.FillEvent, bool) {
	payload := gjson.ParseBytes(data)
	if payload.Get("header.tr_id").String() != fillFeedTrID {
		return shared.FillEvent{}, false
	}

	notice := payload.Get("body.output")
	if !notice.Get("odno").Exists() {
		return shared.FillEvent{}, false
	}

	event := shared.FillEvent{
		OrderID:     notice.Get("odno").String(),
		OrderQty:    notice.Get("ord_qty").Int(),
		UnfilledQty: notice.Get("rmn_qty").Int(),
		FillPrice:   notice.Get("cntg_unpr").Int(),
	}

	return event, true
}

// consume reads execution notices from a single connection until it fails
// or the context is cancelled.
func (f *FillFeed) consume(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(f.subscribeMessage())); err != nil {
		return fmt.Errorf("subscribing to execution notices: %w", err)
	}

	// Unblock the read loop when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading execution notice: %w", err)
		}

		event, ok := parseFillEvent(data)
		if !ok {
			continue
		}

		f.cfg.SendFillEvent(event)
	}
}

// Run manages the lifecycle processes of the fill feed, redialing dropped
// connections until the context is cancelled.
func (f *FillFeed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			f.cfg.Logger.Error().Msgf("dialing fill feed: %v", err)
		} else {
			err = f.consume(ctx, conn)
			if ctx.Err() == nil {
				f.cfg.Logger.Error().Msgf("fill feed dropped: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
			// redial.
		}
	}
}
