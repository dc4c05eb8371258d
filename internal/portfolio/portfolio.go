package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/model"
	"papertrader/internal/store"
)

// Ledger is the single serialization point for every portfolio mutation.
// Manual trades, the bot's sell phase and its buy phase each run under the
// same mutex; callers only ever see deep copies of the state.
type Ledger struct {
	mu      sync.Mutex
	pf      *model.Portfolio
	store   store.PortfolioStore
	journal store.TradeJournal
	prices  PriceLookup
	log     *slog.Logger

	// Optional hooks (metrics).
	OnTrade   func(t model.TradeRecord)
	OnSave    func(err error) // after every save, err nil on success
	OnRevalue func(p *model.Portfolio)
}

// NewLedger creates a ledger backed by st. prices may be nil, in which case
// positions are valued at average cost.
func NewLedger(st store.PortfolioStore, prices PriceLookup, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		pf:     model.NewPortfolio(),
		store:  st,
		prices: prices,
		log:    logger.With(slog.String("component", "ledger")),
	}
}

// SetJournal attaches an audit journal that receives every fill after it is
// saved.
func (l *Ledger) SetJournal(j store.TradeJournal) {
	l.mu.Lock()
	l.journal = j
	l.mu.Unlock()
}

// Load replaces the in-memory state with the stored portfolio. Called once at
// startup; on error the default portfolio stays in place.
func (l *Ledger) Load(ctx context.Context) error {
	pf, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger load: %w", err)
	}
	if pf.Positions == nil {
		pf.Positions = []model.Position{}
	}
	if pf.History == nil {
		pf.History = []model.TradeRecord{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pf = pf
	RecomputeEquity(l.pf, l.prices)
	l.log.Info("portfolio loaded",
		slog.String("cash", pf.Cash.StringFixed(2)),
		slog.Int("positions", len(pf.Positions)),
		slog.Int("trades", len(pf.History)))
	return nil
}

// Snapshot returns a deep copy of the current portfolio.
func (l *Ledger) Snapshot() *model.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pf.Clone()
}

// Buy applies a single buy and persists the result.
func (l *Ledger) Buy(ctx context.Context, symbol string, qty int64, price float64, reason string) (*model.Portfolio, error) {
	return l.Update(ctx, func(tx *Tx) error {
		_, err := tx.Buy(symbol, qty, price, reason)
		return err
	})
}

// Sell applies a single sell and persists the result.
func (l *Ledger) Sell(ctx context.Context, symbol string, qty int64, price float64, reason string) (*model.Portfolio, error) {
	return l.Update(ctx, func(tx *Tx) error {
		_, err := tx.Sell(symbol, qty, price, reason)
		return err
	})
}

// Update runs fn as one transaction under the ledger lock. Every fill applied
// through tx is kept even if fn later returns an error; there is no rollback.
// When anything changed the portfolio is saved once at the end. A failed save
// is logged and reported through OnSave but not returned: the in-memory
// state remains authoritative.
func (l *Ledger) Update(ctx context.Context, fn func(tx *Tx) error) (*model.Portfolio, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &Tx{l: l}
	err := fn(tx)
	if len(tx.trades) > 0 {
		l.persist(ctx, tx.trades)
	}
	return l.pf.Clone(), err
}

// Revalue recomputes equity against current prices and persists it.
func (l *Ledger) Revalue(ctx context.Context) *model.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.pf.Equity
	RecomputeEquity(l.pf, l.prices)
	if !before.Equal(l.pf.Equity) {
		l.pf.UpdatedAt = time.Now().UTC()
		l.persist(ctx, nil)
	}
	if l.OnRevalue != nil {
		l.OnRevalue(l.pf)
	}
	return l.pf.Clone()
}

// persist must be called with mu held.
func (l *Ledger) persist(ctx context.Context, trades []model.TradeRecord) {
	err := l.store.Save(ctx, l.pf.Clone())
	if err != nil {
		l.log.Error("portfolio save failed", slog.Any("err", err))
	}
	if l.OnSave != nil {
		l.OnSave(err)
	}
	for _, t := range trades {
		if l.OnTrade != nil {
			l.OnTrade(t)
		}
		if l.journal == nil {
			continue
		}
		if err := l.journal.RecordTrade(ctx, t); err != nil {
			l.log.Warn("journal write failed", slog.String("trade_id", t.ID), slog.Any("err", err))
		}
	}
	if l.OnRevalue != nil {
		l.OnRevalue(l.pf)
	}
}

// Tx is the view of the portfolio inside Ledger.Update. It must not be
// retained after fn returns.
type Tx struct {
	l      *Ledger
	trades []model.TradeRecord
}

// Cash returns the current cash balance.
func (tx *Tx) Cash() decimal.Decimal { return tx.l.pf.Cash }

// Equity returns the equity as of the last mutation.
func (tx *Tx) Equity() decimal.Decimal { return tx.l.pf.Equity }

// Positions returns a copy of the open positions in stored order.
func (tx *Tx) Positions() []model.Position {
	return append([]model.Position(nil), tx.l.pf.Positions...)
}

// Revalue recomputes equity against current prices and returns it.
func (tx *Tx) Revalue() decimal.Decimal { return RecomputeEquity(tx.l.pf, tx.l.prices) }

// Portfolio returns a deep copy of the current state.
func (tx *Tx) Portfolio() *model.Portfolio { return tx.l.pf.Clone() }

// Buy applies a buy fill at price.
func (tx *Tx) Buy(symbol string, qty int64, price float64, reason string) (model.TradeRecord, error) {
	rec, err := ApplyBuy(tx.l.pf, tx.fill(symbol, qty, price, reason), tx.l.prices)
	if err != nil {
		return rec, err
	}
	tx.trades = append(tx.trades, rec)
	return rec, nil
}

// Sell applies a sell fill at price.
func (tx *Tx) Sell(symbol string, qty int64, price float64, reason string) (model.TradeRecord, error) {
	rec, err := ApplySell(tx.l.pf, tx.fill(symbol, qty, price, reason), tx.l.prices)
	if err != nil {
		return rec, err
	}
	tx.trades = append(tx.trades, rec)
	return rec, nil
}

func (tx *Tx) fill(symbol string, qty int64, price float64, reason string) Fill {
	return Fill{
		Symbol: symbol,
		Qty:    qty,
		Price:  decimal.NewFromFloat(price),
		Reason: reason,
		Time:   time.Now().UTC(),
	}
}
