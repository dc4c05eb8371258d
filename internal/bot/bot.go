// Package bot runs the automated trading cycle over the simulated portfolio
// and exposes its control operations: configuration, the decision log,
// manual trades and status.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"papertrader/internal/bus"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	"papertrader/internal/portfolio"
	"papertrader/internal/ringbuf"
	"papertrader/internal/store"
	"papertrader/internal/strategy"
)

// LogCapacity is the number of decision log entries retained.
const LogCapacity = 100

// ManualReason tags trades placed through ManualTrade.
const ManualReason = "Manual Trade"

// ScoreCategory is the trade metric category of every bot buy. Buy reasons
// carry the score and rule list, which are unbounded as label values.
const ScoreCategory = "Score"

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrInvalidSide   = errors.New("side must be BUY or SELL")
)

// State is the cycle state machine position.
type State int32

const (
	StateIdle State = iota
	StateEvaluatingSells
	StateEvaluatingBuys
)

func (s State) String() string {
	switch s {
	case StateEvaluatingSells:
		return "EvaluatingSells"
	case StateEvaluatingBuys:
		return "EvaluatingBuys"
	default:
		return "Idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// DecisionLogEntry is one line of the bot's decision log.
type DecisionLogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Market is the read side of the asset universe.
type Market interface {
	Assets() []model.AssetSnapshot
	Lookup(symbol string) (model.AssetSnapshot, bool)
}

// Executor fills signals inside a ledger transaction. FillPrice reports the
// price Execute would fill sig at, so orders can be sized against it.
type Executor interface {
	Execute(tx *portfolio.Tx, sig strategy.Signal) (model.TradeRecord, error)
	FillPrice(sig strategy.Signal) float64
}

// Deps are the bot's collaborators. Ledger, Market and Executor are
// required; the rest may be nil.
type Deps struct {
	Ledger   *portfolio.Ledger
	Market   Market
	Executor Executor
	Config   store.ConfigStore
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Events   *bus.FanOut[DecisionLogEntry]
	Logger   *slog.Logger
}

// Bot owns the trading configuration, the scheduler and the decision log.
// The portfolio itself is owned by the ledger.
type Bot struct {
	deps Deps
	log  *slog.Logger
	logs *ringbuf.Ring[DecisionLogEntry]

	reconfMu sync.Mutex // serializes SetConfig
	cfgMu    sync.RWMutex
	cfg      Config

	cycleMu   sync.Mutex // one cycle at a time
	state     atomic.Int32
	cycles    atomic.Uint64
	lastCycle atomic.Pointer[CycleReport]

	sched   *Scheduler
	baseCtx context.Context
	now     func() time.Time
}

// New creates a stopped bot with cfg. Call Start to begin scheduling.
func New(deps Deps, cfg Config) (*Bot, error) {
	if deps.Ledger == nil || deps.Market == nil || deps.Executor == nil {
		return nil, errors.New("bot: ledger, market and executor are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	b := &Bot{
		deps:    deps,
		log:     deps.Logger.With(slog.String("component", "bot")),
		logs:    ringbuf.New[DecisionLogEntry](LogCapacity),
		cfg:     cfg,
		baseCtx: context.Background(),
		now:     time.Now,
	}
	b.sched = NewScheduler(func(ctx context.Context) {
		// A started cycle is never interrupted by cancellation.
		b.RunCycle(context.WithoutCancel(ctx))
	})
	return b, nil
}

// Restore loads a persisted configuration, if any, over the current one.
func (b *Bot) Restore(ctx context.Context) error {
	if b.deps.Config == nil {
		return nil
	}
	raw, err := b.deps.Config.LoadConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore bot config: %w", err)
	}
	cfg := b.GetConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("restore bot config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("restore bot config: %w", err)
	}
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()
	b.log.Info("bot config restored", slog.Bool("enabled", cfg.Enabled), slog.Int("interval", cfg.IntervalSeconds))
	return nil
}

// Start begins scheduling if the bot is enabled. ctx bounds the scheduler's
// lifetime for this and every later reconfiguration.
func (b *Bot) Start(ctx context.Context) {
	b.reconfMu.Lock()
	defer b.reconfMu.Unlock()
	b.baseCtx = ctx
	b.reschedule(b.GetConfig())
}

// Stop cancels the schedule. A cycle in progress completes first.
func (b *Bot) Stop() {
	b.sched.Stop()
	if m := b.deps.Metrics; m != nil {
		m.BotEnabled.Set(0)
	}
}

// GetConfig returns the current configuration.
func (b *Bot) GetConfig() Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg
}

// SetConfig applies a partial update, persists it and always reschedules:
// disabled stops the schedule, enabled restarts it with the new interval and
// runs a cycle immediately.
func (b *Bot) SetConfig(ctx context.Context, patch ConfigPatch) (Config, error) {
	b.reconfMu.Lock()
	defer b.reconfMu.Unlock()

	b.cfgMu.Lock()
	cur := b.cfg
	next := patch.Apply(cur)
	if err := next.Validate(); err != nil {
		b.cfgMu.Unlock()
		return cur, err
	}
	b.cfg = next
	b.cfgMu.Unlock()

	if b.deps.Config != nil {
		if raw, err := json.Marshal(next); err == nil {
			if err := b.deps.Config.SaveConfig(ctx, raw); err != nil {
				b.log.Warn("bot config not persisted", slog.Any("err", err))
			}
		}
	}

	b.record(slog.LevelInfo, fmt.Sprintf("Config updated: enabled=%t interval=%ds size=%g%% sl=%g%% tp=%g%% buyScore=%d",
		next.Enabled, next.IntervalSeconds, next.PositionSizePct, next.StopLossPct, next.TakeProfitPct, next.BuyScore))
	b.reschedule(next)
	return next, nil
}

// reschedule must be called with reconfMu held.
func (b *Bot) reschedule(cfg Config) {
	if !cfg.Enabled {
		b.Stop()
		b.log.Info("bot schedule stopped")
		return
	}
	b.sched.Restart(b.baseCtx, cfg.Interval())
	if m := b.deps.Metrics; m != nil {
		m.BotEnabled.Set(1)
	}
	b.log.Info("bot scheduled", slog.Duration("interval", cfg.Interval()))
}

// RecentLogs returns up to LogCapacity decision log entries, oldest first.
func (b *Bot) RecentLogs() []DecisionLogEntry { return b.logs.Snapshot() }

// State returns the current cycle state.
func (b *Bot) State() State { return State(b.state.Load()) }

// Status is a point-in-time view of the bot.
type Status struct {
	State     State        `json:"state"`
	Config    Config       `json:"config"`
	Scheduled bool         `json:"scheduled"`
	Cycles    uint64       `json:"cycles"`
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
}

// Status reports the bot's state, configuration and last cycle.
func (b *Bot) Status() Status {
	running, _ := b.sched.Running()
	return Status{
		State:     b.State(),
		Config:    b.GetConfig(),
		Scheduled: running,
		Cycles:    b.cycles.Load(),
		LastCycle: b.lastCycle.Load(),
	}
}

// ManualTrade applies a user trade through the same ledger path as the cycle.
// A price <= 0 means "at the live price". Insufficient funds or holdings are
// returned as portfolio.ErrInsufficientFunds / ErrInsufficientHoldings.
func (b *Bot) ManualTrade(ctx context.Context, symbol, side string, qty int64, price float64) (*model.Portfolio, error) {
	s, ok := model.ParseSide(strings.TrimSpace(side))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if price <= 0 {
		a, ok := b.deps.Market.Lookup(symbol)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		price = a.Price
	}

	sig := strategy.Signal{
		StrategyName: strategy.ManualStrategyName,
		Action:       strategy.Action(s),
		Symbol:       symbol,
		Qty:          qty,
		Price:        price,
		Reason:       ManualReason,
	}
	var rec model.TradeRecord
	pf, err := b.deps.Ledger.Update(ctx, func(tx *portfolio.Tx) error {
		var err error
		rec, err = b.deps.Executor.Execute(tx, sig)
		return err
	})
	if err != nil {
		b.record(slog.LevelWarn, fmt.Sprintf("Manual %s %s rejected: %v", s, symbol, err))
		return nil, err
	}
	b.record(slog.LevelInfo, fmt.Sprintf("Manual %s %d %s @ %s", s, rec.Qty, rec.Symbol, rec.Price.StringFixed(2)))
	b.countTrade(rec, ManualReason)
	return pf, nil
}

// record appends to the decision log and mirrors it to slog and subscribers.
func (b *Bot) record(level slog.Level, msg string) {
	e := DecisionLogEntry{Time: b.now().UTC(), Level: level.String(), Message: msg}
	b.logs.Push(e)
	b.log.Log(context.Background(), level, msg)
	if b.deps.Events != nil {
		b.deps.Events.Publish(e)
	}
}

// countTrade counts a fill under a bounded category: an exit reason,
// ScoreCategory or ManualReason.
func (b *Bot) countTrade(rec model.TradeRecord, category string) {
	if m := b.deps.Metrics; m != nil {
		m.TradesTotal.WithLabelValues(string(rec.Side), category).Inc()
	}
}

// alert delivers trade notifications off the ledger lock.
func (b *Bot) alert(trades []model.TradeRecord) {
	if b.deps.Notifier == nil || len(trades) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, t := range trades {
			if err := b.deps.Notifier.Send(ctx, notification.TradeAlert(t)); err != nil {
				b.log.Warn("trade alert failed", slog.String("trade_id", t.ID), slog.Any("err", err))
				if m := b.deps.Metrics; m != nil {
					m.NotifyFailures.Inc()
				}
			}
		}
	}()
}
