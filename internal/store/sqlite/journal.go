package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/model"
)

// RecordTrade appends a fill to the journal. Recording the same trade ID
// twice is a no-op.
func (s *Store) RecordTrade(ctx context.Context, t model.TradeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO trades (id, side, symbol, qty, price, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Side),
		t.Symbol,
		t.Qty,
		t.Price.String(),
		t.Reason,
		t.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite record trade: %w", err)
	}
	return nil
}

// RecentTrades returns the last limit journaled fills, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, side, symbol, qty, price, reason, filled_at
		 FROM trades ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var (
			t               model.TradeRecord
			side, price, at string
		)
		if err := rows.Scan(&t.ID, &side, &t.Symbol, &t.Qty, &price, &t.Reason, &at); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Side = model.Side(side)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sqlite trade %s price: %w", t.ID, err)
		}
		if t.Time, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("sqlite trade %s time: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
