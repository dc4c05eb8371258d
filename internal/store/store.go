// Package store defines the persistence contract for the simulated portfolio.
// Implementations: in-memory (default and tests), SQLite and Redis.
//
// The in-memory Portfolio held by the ledger is authoritative; a store only
// ever receives copies of it and a failed Save never rolls anything back.
package store

import (
	"context"
	"errors"

	"papertrader/internal/model"
)

// ErrNotFound is returned by backends that distinguish "no row" from failure.
var ErrNotFound = errors.New("store: not found")

// PortfolioStore loads and saves the single simulated account.
type PortfolioStore interface {
	// Load returns the stored portfolio, creating and persisting the default
	// one when nothing is stored yet.
	Load(ctx context.Context) (*model.Portfolio, error)

	// Save persists a copy of the portfolio.
	Save(ctx context.Context, p *model.Portfolio) error
}

// TradeJournal records every executed fill for audit.
type TradeJournal interface {
	RecordTrade(ctx context.Context, t model.TradeRecord) error
}

// ConfigStore persists the bot configuration as an opaque JSON document.
type ConfigStore interface {
	LoadConfig(ctx context.Context) ([]byte, error)
	SaveConfig(ctx context.Context, data []byte) error
}
