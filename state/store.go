package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
)

// StoreConfig represents the configuration for the state store.
type StoreConfig struct {
	// Path is the filepath of the persisted state document.
	Path string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Store is a durable symbol to trading day state mapping. The backing
// document is read once at startup and rewritten in full after every state
// transition, there is no append log. The store is not safe for concurrent
// use, all access must come from the trader loop.
type Store struct {
	cfg    *StoreConfig
	states map[string]*TradingDayState
}

// NewStore initializes the state store, loading any persisted document at
// the configured path. An unreadable or malformed document is discarded and
// the store starts empty rather than failing startup.
func NewStore(cfg *StoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state store path cannot be an empty string")
	}

	store := &Store{
		cfg:    cfg,
		states: make(map[string]*TradingDayState),
	}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run, start empty.
	case err != nil:
		cfg.Logger.Error().Msgf("reading state document, starting empty: %v", err)
	default:
		if err := json.Unmarshal(data, &store.states); err != nil {
			cfg.Logger.Error().Msgf("malformed state document, starting empty: %v", err)
			store.states = make(map[string]*TradingDayState)
		}
	}

	return store, nil
}

// State returns the trading day state for the provided symbol, creating it
// on first observation.
func (s *Store) State(symbol string) *TradingDayState {
	st, ok := s.states[symbol]
	if !ok {
		st = &TradingDayState{Symbol: symbol}
		s.states[symbol] = st
	}

	return st
}

// Save rewrites the full state document. The write goes to a temporary file
// in the same directory which is then renamed over the destination, so the
// document on disk is always a complete snapshot.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(s.states, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling state document: %w", err)
	}

	tmp := s.cfg.Path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temporary state document: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing temporary state document: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing temporary state document: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temporary state document: %w", err)
	}

	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		return fmt.Errorf("replacing state document: %w", err)
	}

	return nil
}
