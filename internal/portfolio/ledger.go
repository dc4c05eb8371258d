// Package portfolio owns the simulated account: cash, positions, trade
// history and derived equity.
//
// ApplyBuy, ApplySell and RecomputeEquity are the pure state transitions.
// Ledger wraps them behind a single mutex so that manual trades and the bot's
// cycle phases never interleave their read-modify-write sequences, and hands
// every mutated state to the persistence store.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrader/internal/model"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrInvalidQuantity      = errors.New("invalid quantity or price")
)

// PriceLookup returns the live price for symbol, if one is known.
type PriceLookup func(symbol string) (float64, bool)

// Fill is an order to apply against the portfolio.
type Fill struct {
	Symbol string
	Qty    int64
	Price  decimal.Decimal
	Reason string
	Time   time.Time
}

func (f Fill) validate() error {
	if f.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidQuantity)
	}
	if f.Qty <= 0 {
		return fmt.Errorf("%w: quantity %d must be positive", ErrInvalidQuantity, f.Qty)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidQuantity, f.Price)
	}
	return nil
}

func (f Fill) notional() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Qty))
}

func (f Fill) record(side model.Side) model.TradeRecord {
	at := f.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return model.TradeRecord{
		ID:     uuid.NewString(),
		Time:   at,
		Side:   side,
		Symbol: f.Symbol,
		Qty:    f.Qty,
		Price:  f.Price,
		Reason: f.Reason,
	}
}

// ApplyBuy debits cash, opens or averages into the position and appends a
// BUY record. Fails with ErrInsufficientFunds when cash < qty × price, in which
// case p is left untouched.
func ApplyBuy(p *model.Portfolio, f Fill, prices PriceLookup) (model.TradeRecord, error) {
	if err := f.validate(); err != nil {
		return model.TradeRecord{}, err
	}
	cost := f.notional()
	if p.Cash.LessThan(cost) {
		return model.TradeRecord{}, fmt.Errorf("%w: %s %d @ %s needs %s, cash %s",
			ErrInsufficientFunds, f.Symbol, f.Qty, f.Price, cost.StringFixed(2), p.Cash.StringFixed(2))
	}

	p.Cash = p.Cash.Sub(cost)
	if i := p.Position(f.Symbol); i >= 0 {
		pos := &p.Positions[i]
		// Weighted average: (oldAvg*oldQty + qty*price) / (oldQty+qty)
		total := pos.CostBasis().Add(cost)
		pos.Qty += f.Qty
		pos.AvgPrice = total.Div(decimal.NewFromInt(pos.Qty))
	} else {
		p.Positions = append(p.Positions, model.Position{Symbol: f.Symbol, Qty: f.Qty, AvgPrice: f.Price})
	}

	rec := f.record(model.SideBuy)
	p.History = append(p.History, rec)
	p.UpdatedAt = rec.Time
	RecomputeEquity(p, prices)
	return rec, nil
}

// ApplySell credits cash, reduces the position (removing it at zero) and
// appends a SELL record. Fails with ErrInsufficientHoldings when the position
// is missing or smaller than qty. The average cost of what remains is kept.
func ApplySell(p *model.Portfolio, f Fill, prices PriceLookup) (model.TradeRecord, error) {
	if err := f.validate(); err != nil {
		return model.TradeRecord{}, err
	}
	i := p.Position(f.Symbol)
	if i < 0 {
		return model.TradeRecord{}, fmt.Errorf("%w: no %s position", ErrInsufficientHoldings, f.Symbol)
	}
	if held := p.Positions[i].Qty; held < f.Qty {
		return model.TradeRecord{}, fmt.Errorf("%w: %s holds %d, sell %d", ErrInsufficientHoldings, f.Symbol, held, f.Qty)
	}

	p.Cash = p.Cash.Add(f.notional())
	if p.Positions[i].Qty == f.Qty {
		p.Positions = append(p.Positions[:i], p.Positions[i+1:]...)
	} else {
		p.Positions[i].Qty -= f.Qty
	}

	rec := f.record(model.SideSell)
	p.History = append(p.History, rec)
	p.UpdatedAt = rec.Time
	RecomputeEquity(p, prices)
	return rec, nil
}

// RecomputeEquity sets p.Equity = cash + Σ qty × (live price, else average
// cost) and returns it. It depends only on the current state, so calling it
// twice in a row yields the same value.
func RecomputeEquity(p *model.Portfolio, prices PriceLookup) decimal.Decimal {
	equity := p.Cash
	for _, pos := range p.Positions {
		equity = equity.Add(markPrice(pos, prices).Mul(decimal.NewFromInt(pos.Qty)))
	}
	p.Equity = equity
	return equity
}

func markPrice(pos model.Position, prices PriceLookup) decimal.Decimal {
	if prices != nil {
		if px, ok := prices(pos.Symbol); ok && px > 0 {
			return decimal.NewFromFloat(px)
		}
	}
	return pos.AvgPrice
}
