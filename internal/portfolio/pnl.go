package portfolio

import (
	"github.com/shopspring/decimal"

	"papertrader/internal/model"
)

// Summary is a valuation of the portfolio at current prices.
type Summary struct {
	Cash          decimal.Decimal `json:"cash"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Equity        decimal.Decimal `json:"equity"`
	OpenPositions int             `json:"open_positions"`
	TotalTrades   int             `json:"total_trades"`
}

// Summarize values p without mutating it.
func Summarize(p *model.Portfolio, prices PriceLookup) Summary {
	s := Summary{
		Cash:          p.Cash,
		OpenPositions: len(p.Positions),
		TotalTrades:   len(p.History),
	}
	for _, pos := range p.Positions {
		qty := decimal.NewFromInt(pos.Qty)
		s.MarketValue = s.MarketValue.Add(markPrice(pos, prices).Mul(qty))
		s.CostBasis = s.CostBasis.Add(pos.CostBasis())
	}
	s.UnrealizedPnL = s.MarketValue.Sub(s.CostBasis)
	s.Equity = s.Cash.Add(s.MarketValue)
	return s
}
