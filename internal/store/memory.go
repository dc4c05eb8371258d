package store

import (
	"context"
	"sync"

	"papertrader/internal/model"
)

// Memory keeps the portfolio in process memory. Data is lost on restart.
type Memory struct {
	mu     sync.RWMutex
	pf     *model.Portfolio
	config []byte
	trades []model.TradeRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (*model.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pf == nil {
		m.pf = model.NewPortfolio()
	}
	return m.pf.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, p *model.Portfolio) error {
	m.mu.Lock()
	m.pf = p.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecordTrade(ctx context.Context, t model.TradeRecord) error {
	m.mu.Lock()
	m.trades = append(m.trades, t)
	m.mu.Unlock()
	return nil
}

// Trades returns the journaled fills, oldest first.
func (m *Memory) Trades() []model.TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.TradeRecord(nil), m.trades...)
}

func (m *Memory) LoadConfig(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.config...), nil
}

func (m *Memory) SaveConfig(ctx context.Context, data []byte) error {
	m.mu.Lock()
	m.config = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}
