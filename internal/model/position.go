package model

import "github.com/shopspring/decimal"

// Position is an open long holding. Qty is always > 0; a position that would
// reach zero is removed from the portfolio instead.
type Position struct {
	Symbol   string          `json:"symbol"`
	Qty      int64           `json:"qty"`
	AvgPrice decimal.Decimal `json:"avg_price"` // weighted mean of buy fills
}

// CostBasis returns qty × average price.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AvgPrice.Mul(decimal.NewFromInt(p.Qty))
}

// PnLPct returns the fractional return of price against the average cost.
func (p *Position) PnLPct(price float64) float64 {
	avg := p.AvgPrice.InexactFloat64()
	if avg == 0 {
		return 0
	}
	return (price - avg) / avg
}
