// Package execution turns strategy signals into fills against the simulated
// portfolio. There is no broker: a signal fills immediately at its price,
// optionally adjusted by a fixed slippage.
package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	"papertrader/internal/strategy"
)

// ErrUnknownAction is returned for a signal that is neither BUY nor SELL.
var ErrUnknownAction = errors.New("unknown signal action")

// PaperExecutor fills signals inside a ledger transaction.
type PaperExecutor struct {
	// Simulation parameters
	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)

	log    *slog.Logger
	filled atomic.Uint64

	// Optional hook (metrics). Fills are observed through the ledger.
	OnReject func(sig strategy.Signal, err error)
}

// NewPaperExecutor creates a paper trading executor.
// slippageBps controls simulated slippage in basis points.
func NewPaperExecutor(slippageBps int64, logger *slog.Logger) *PaperExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperExecutor{
		slippageBps: slippageBps,
		log:         logger.With(slog.String("component", "executor")),
	}
}

// Execute applies sig through tx at FillPrice(sig).
func (p *PaperExecutor) Execute(tx *portfolio.Tx, sig strategy.Signal) (model.TradeRecord, error) {
	price := p.FillPrice(sig)

	var (
		rec model.TradeRecord
		err error
	)
	switch sig.Action {
	case strategy.ActionBuy:
		rec, err = tx.Buy(sig.Symbol, sig.Qty, price, sig.Reason)
	case strategy.ActionSell:
		rec, err = tx.Sell(sig.Symbol, sig.Qty, price, sig.Reason)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, sig.Action)
	}
	if err != nil {
		p.log.Debug("signal rejected", slog.String("signal", sig.String()), slog.Any("err", err))
		if p.OnReject != nil {
			p.OnReject(sig, err)
		}
		return rec, err
	}

	p.filled.Add(1)
	p.log.Info("paper fill",
		slog.String("strategy", sig.StrategyName),
		slog.String("action", string(sig.Action)),
		slog.String("symbol", sig.Symbol),
		slog.Int64("qty", sig.Qty),
		slog.Float64("price", price),
		slog.String("reason", sig.Reason),
		slog.String("trade_id", rec.ID))
	return rec, nil
}

// Filled returns the number of signals filled since start.
func (p *PaperExecutor) Filled() uint64 { return p.filled.Load() }

// FillPrice is the price sig would fill at. Buys fill higher and sells lower
// by the configured slippage; manual trades fill at the requested price.
func (p *PaperExecutor) FillPrice(sig strategy.Signal) float64 {
	if p.slippageBps <= 0 || sig.Price <= 0 || sig.StrategyName == strategy.ManualStrategyName {
		return sig.Price
	}
	slip := sig.Price * float64(p.slippageBps) / 10000
	if sig.Action == strategy.ActionBuy {
		return sig.Price + slip // buy higher
	}
	return sig.Price - slip // sell lower
}
