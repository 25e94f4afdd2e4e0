package journal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/jyhan/lwtrader/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createCycleTableSQL    = "CREATE TABLE IF NOT EXISTS cycle (id TEXT PRIMARY KEY, symbol TEXT, buydate TEXT, buyprice INTEGER, qty INTEGER, selldate TEXT, sellprice INTEGER, pnl INTEGER, createdon INTEGER)"
	createMetadataTableSQL = "CREATE TABLE IF NOT EXISTS metadata (id TEXT PRIMARY KEY, total INTEGER, wins INTEGER, losses INTEGER, netpnl INTEGER, createdon INTEGER)"
	persistCycleSQL        = "INSERT INTO cycle(id, symbol, buydate, buyprice, qty, selldate, sellprice, pnl, createdon) VALUES(?,?,?,?,?,?,?,?,?)"
	findMetadataSQL        = "SELECT * FROM metadata WHERE id = ?"
	updateMetadataSQL      = "UPDATE metadata SET total = total + 1, wins = wins + ?, losses = losses + ?, netpnl = netpnl + ? WHERE id = ?"
	persistMetadataSQL     = "INSERT INTO metadata(id, total, wins, losses, netpnl, createdon) VALUES(?,?,?,?,?,?)"
)

// CycleStorer defines the requirements for storing completed trade cycles.
type CycleStorer interface {
	// PersistCycle stores the provided completed trade cycle.
	PersistCycle(ctx context.Context, cycle *shared.TradeCycle) error
}

// JournalConfig is the configuration for the trade journal.
type JournalConfig struct {
	// Endpoint represents the journal database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the journal logger.
	Logger *zerolog.Logger
}

// Journal records completed trade cycles and weekly aggregates.
type Journal struct {
	cfg    *JournalConfig
	client *rqlitehttp.Client
}

// Ensure the journal implements the CycleStorer interface.
var _ CycleStorer = (*Journal)(nil)

// NewJournal initializes a new trade journal connection.
func NewJournal(ctx context.Context, cfg *JournalConfig) (*Journal, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating journal client: %w", err)
	}

	client.SetBasicAuth(cfg.User, cfg.Pass)

	journal := &Journal{
		cfg:    cfg,
		client: client,
	}

	err = journal.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping journal: %w", err)
	}

	return journal, nil
}

// bootstrap initializes the journal tables.
func (j *Journal) bootstrap(ctx context.Context) error {
	_, err := j.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createCycleTableSQL},
		{SQL: createMetadataTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	return nil
}

// generateMetadataID generates deterministic ids for metadata using the
// current month, week and symbol.
func generateMetadataID(currentTime time.Time, symbol string) string {
	month := currentTime.Month().String()
	week := currentTime.Day() / 7

	id := fmt.Sprintf("%s-Week-%d-%s", month, week, symbol)
	return id
}

// PersistCycle stores the provided completed trade cycle and folds it into
// the weekly aggregates.
func (j *Journal) PersistCycle(ctx context.Context, cycle *shared.TradeCycle) error {
	now, _, err := shared.SeoulTime()
	if err != nil {
		return err
	}

	pnl := cycle.PNL()

	_, err = j.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistCycleSQL,
			PositionalParams: []any{uuid.New().String(), cycle.Symbol, cycle.BuyDate,
				cycle.BuyPrice, cycle.Qty, cycle.SellDate, cycle.SellPrice, pnl, now.Unix()},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	var win, loss int
	switch {
	case pnl > 0:
		win++
	case pnl < 0:
		loss++
	default:
		j.cfg.Logger.Info().Msgf("flat cycle recorded: %s", spew.Sdump(cycle))
	}

	id := generateMetadataID(now, cycle.Symbol)
	resp, err := j.client.QuerySingle(ctx, findMetadataSQL, id)
	if err != nil {
		return err
	}

	exists := len(resp.GetQueryResultsAssoc()) > 0
	switch {
	case exists:
		resp, err := j.client.Execute(ctx, rqlitehttp.SQLStatements{
			{
				SQL:              updateMetadataSQL,
				PositionalParams: []any{win, loss, pnl, id},
			},
		}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
		if err != nil {
			return err
		}
		has, idx, errStr := resp.HasError()
		if has {
			return fmt.Errorf("updating journal metadata %s: %d -> %s", id, idx, errStr)
		}
	default:
		resp, err := j.client.Execute(ctx, rqlitehttp.SQLStatements{
			{
				SQL:              persistMetadataSQL,
				PositionalParams: []any{id, 1, win, loss, pnl, now.Unix()},
			},
		}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
		if err != nil {
			return err
		}
		has, idx, errStr := resp.HasError()
		if has {
			return fmt.Errorf("persisting journal metadata %s: %d -> %s", id, idx, errStr)
		}
	}

	return nil
}
