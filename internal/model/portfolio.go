package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStartingCash is the cash balance of a freshly created account.
const DefaultStartingCash = 100000

// Portfolio is the simulated account: cash, ordered positions and the
// append-only trade history. Equity is derived and must be recomputed after
// every mutation.
type Portfolio struct {
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
	History   []TradeRecord   `json:"history"`
	Equity    decimal.Decimal `json:"equity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewPortfolio returns the default account: starting cash, nothing held.
func NewPortfolio() *Portfolio {
	cash := decimal.NewFromInt(DefaultStartingCash)
	return &Portfolio{
		Cash:      cash,
		Positions: []Position{},
		History:   []TradeRecord{},
		Equity:    cash,
	}
}

// Position returns the index of symbol's position, or -1.
func (p *Portfolio) Position(symbol string) int {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the ledger lock.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Positions = append(make([]Position, 0, len(p.Positions)), p.Positions...)
	cp.History = append(make([]TradeRecord, 0, len(p.History)), p.History...)
	return &cp
}
