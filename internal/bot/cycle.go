package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	"papertrader/internal/strategy"
)

// CycleReport summarizes one trading cycle.
type CycleReport struct {
	StartedAt  time.Time           `json:"started_at"`
	Duration   time.Duration       `json:"duration_ns"`
	Checked    int                 `json:"checked"`
	Candidates int                 `json:"candidates"`
	Sells      []model.TradeRecord `json:"sells"`
	Buy        *model.TradeRecord  `json:"buy,omitempty"`
	Cash       decimal.Decimal     `json:"cash"`
	Equity     decimal.Decimal     `json:"equity"`
	Failures   int                 `json:"failures"`
}

// RunCycle executes one full pass: the sell phase, then the buy phase, each as
// one ledger transaction. Cycles never overlap; a concurrent call waits.
func (b *Bot) RunCycle(ctx context.Context) *CycleReport {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	cfg := b.GetConfig()
	rep := &CycleReport{StartedAt: b.now().UTC()}
	start := time.Now()
	defer func() {
		result := "ok"
		if r := recover(); r != nil {
			result = "panic"
			b.record(slog.LevelError, fmt.Sprintf("Cycle aborted: %v", r))
		}
		b.setState(StateIdle)
		rep.Duration = time.Since(start)
		b.cycles.Add(1)
		b.lastCycle.Store(rep)
		if m := b.deps.Metrics; m != nil {
			m.CyclesTotal.WithLabelValues(result).Inc()
			m.CycleDuration.Observe(rep.Duration.Seconds())
			m.CandidatesLen.Set(float64(rep.Candidates))
		}
	}()

	b.setState(StateEvaluatingSells)
	b.sellPhase(ctx, cfg, rep)

	b.setState(StateEvaluatingBuys)
	b.buyPhase(ctx, cfg, rep)

	b.record(slog.LevelInfo, fmt.Sprintf("Cycle complete: checked %d assets, %d candidates, cash %s",
		rep.Checked, rep.Candidates, rep.Cash.StringFixed(2)))

	trades := append([]model.TradeRecord(nil), rep.Sells...)
	if rep.Buy != nil {
		trades = append(trades, *rep.Buy)
	}
	b.alert(trades)
	return rep
}

func (b *Bot) setState(s State) {
	b.state.Store(int32(s))
	if m := b.deps.Metrics; m != nil {
		m.BotState.Set(float64(s))
	}
}

// sellPhase closes every position whose exit rule fires, in stored order,
// selling the entire quantity.
func (b *Bot) sellPhase(ctx context.Context, cfg Config, rep *CycleReport) {
	b.deps.Ledger.Update(ctx, func(tx *portfolio.Tx) error {
		for _, pos := range tx.Positions() {
			a, ok := b.deps.Market.Lookup(pos.Symbol)
			if !ok {
				continue
			}
			d, err := safeExit(pos, a, cfg)
			if err != nil {
				rep.Failures++
				b.assetFailed(pos.Symbol, err)
				continue
			}
			if !d.Exit {
				continue
			}
			sig := strategy.Signal{
				StrategyName: strategy.StrategyName,
				Action:       strategy.ActionSell,
				Symbol:       pos.Symbol,
				Qty:          pos.Qty,
				Price:        d.Price,
				Reason:       string(d.Reason),
			}
			rec, err := b.deps.Executor.Execute(tx, sig)
			if err != nil {
				b.record(slog.LevelWarn, fmt.Sprintf("Skip SELL %s: %v", pos.Symbol, err))
				continue
			}
			rep.Sells = append(rep.Sells, rec)
			b.countTrade(rec, string(d.Reason))
			b.record(slog.LevelInfo, fmt.Sprintf("SELL %d %s @ %.2f (%s, P&L %.2f%%)",
				rec.Qty, rec.Symbol, d.Price, d.Reason, d.PnLPct*100))
		}
		return nil
	})
}

// buyPhase opens at most one position in the best-scoring candidate.
func (b *Bot) buyPhase(ctx context.Context, cfg Config, rep *CycleReport) {
	universe := b.deps.Market.Assets()
	rep.Checked = len(universe)

	b.deps.Ledger.Update(ctx, func(tx *portfolio.Tx) error {
		// Cash and equity as left by the sell phase, at current prices.
		equity := tx.Revalue()
		cash := tx.Cash()
		defer func() {
			rep.Cash = tx.Cash()
			rep.Equity = tx.Equity()
		}()

		candidates := strategy.RankCandidates(universe, cfg.BuyScore, func(a model.AssetSnapshot, err error) {
			rep.Failures++
			b.assetFailed(a.Symbol, err)
		})
		rep.Candidates = len(candidates)

		if len(candidates) == 0 || !cash.GreaterThan(portfolio.MinCashForBuy) {
			return nil
		}
		top := candidates[0]
		sig := strategy.Signal{
			StrategyName: strategy.StrategyName,
			Action:       strategy.ActionBuy,
			Symbol:       top.Asset.Symbol,
			Price:        top.Asset.Price,
			Score:        top.Result.Score,
			Reason:       fmt.Sprintf("Score %d: %s", top.Result.Score, top.Result.Summary()),
		}
		// Size and check against what the fill will actually cost.
		price := b.deps.Executor.FillPrice(sig)
		qty := portfolio.BuyQuantity(equity, cfg.PositionSizePct, price)
		if qty <= 0 || !portfolio.CanAfford(cash, qty, price) {
			b.record(slog.LevelInfo, fmt.Sprintf("No-op: %s score %d, qty %d @ %.2f not affordable with cash %s",
				top.Asset.Symbol, top.Result.Score, qty, price, cash.StringFixed(2)))
			return nil
		}
		sig.Qty = qty

		rec, err := b.deps.Executor.Execute(tx, sig)
		if err != nil {
			b.record(slog.LevelWarn, fmt.Sprintf("Skip BUY %s: %v", top.Asset.Symbol, err))
			return nil
		}
		rep.Buy = &rec
		b.countTrade(rec, ScoreCategory)
		b.record(slog.LevelInfo, fmt.Sprintf("BUY %d %s @ %.2f (%s)", rec.Qty, rec.Symbol, price, sig.Reason))
		return nil
	})
}

func (b *Bot) assetFailed(symbol string, err error) {
	b.record(slog.LevelError, fmt.Sprintf("Evaluation of %s failed: %v", symbol, err))
	if m := b.deps.Metrics; m != nil {
		m.AssetFailures.Inc()
	}
}

func safeExit(pos model.Position, a model.AssetSnapshot, cfg Config) (d strategy.ExitDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exit panic: %v", r)
		}
	}()
	if err := a.Validate(); err != nil {
		return strategy.ExitDecision{}, err
	}
	return strategy.EvaluateExit(pos, a, cfg.StopLossPct, cfg.TakeProfitPct), nil
}
