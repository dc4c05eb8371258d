package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalises a user-supplied side string.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "BUY", "buy", "Buy":
		return SideBuy, true
	case "SELL", "sell", "Sell":
		return SideSell, true
	}
	return "", false
}

// TradeRecord is an executed fill. Records are append-only and never edited.
type TradeRecord struct {
	ID     string          `json:"id"`
	Time   time.Time       `json:"date"`
	Side   Side            `json:"type"`
	Symbol string          `json:"symbol"`
	Qty    int64           `json:"qty"`
	Price  decimal.Decimal `json:"price"`
	Reason string          `json:"reason"`
}

// Notional returns qty × price.
func (t *TradeRecord) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Qty))
}
