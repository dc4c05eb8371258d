// Package sim generates a simulated universe: a fixed basket of US, Polish and
// crypto assets whose prices take a small random walk on every fetch.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"papertrader/internal/marketdata"
	"papertrader/internal/model"
)

// Asset is a basket entry.
type Asset struct {
	Symbol     string
	Name       string
	Market     string
	Price      float64
	Change     float64 // percent, used until a second day of history exists
	BaseVolume float64
}

// DefaultBasket is the fallback universe.
var DefaultBasket = []Asset{
	{Symbol: "AAPL", Name: "Apple Inc.", Market: marketdata.MarketUS, Price: 173.50, Change: 1.24, BaseVolume: 55_000_000},
	{Symbol: "NVDA", Name: "NVIDIA Corp.", Market: marketdata.MarketUS, Price: 885.20, Change: 3.50, BaseVolume: 40_000_000},
	{Symbol: "MSFT", Name: "Microsoft", Market: marketdata.MarketUS, Price: 420.00, Change: 0.80, BaseVolume: 22_000_000},
	{Symbol: "PKO", Name: "PKO BP", Market: marketdata.MarketPL, Price: 45.20, Change: 1.10, BaseVolume: 3_000_000},
	{Symbol: "CDR", Name: "CD Projekt", Market: marketdata.MarketPL, Price: 115.00, Change: 0.50, BaseVolume: 800_000},
	{Symbol: "XTB", Name: "XTB S.A.", Market: marketdata.MarketPL, Price: 65.00, Change: 2.10, BaseVolume: 400_000},
	{Symbol: "BTC", Name: "Bitcoin", Market: marketdata.MarketCrypto, Price: 64230, Change: 2.4, BaseVolume: 30_000},
	{Symbol: "ETH", Name: "Ethereum", Market: marketdata.MarketCrypto, Price: 3450, Change: -1.2, BaseVolume: 400_000},
	{Symbol: "SOL", Name: "Solana", Market: marketdata.MarketCrypto, Price: 145.00, Change: 5.4, BaseVolume: 2_500_000},
}

// Config controls the simulator.
type Config struct {
	Seed int64
	// Markets restricts the basket; empty means every market.
	Markets []string
	// StepPct is the maximum per-fetch move in percent. Defaults to 0.5.
	StepPct float64
	Basket  []Asset
	Now     func() time.Time
}

type series struct {
	asset Asset
	bars  []model.Candle
}

// Provider is a stateful random-walk market. Safe for concurrent use.
type Provider struct {
	mu     sync.Mutex
	cfg    Config
	rng    *rand.Rand
	series []*series
}

// New creates a simulator and synthesizes the initial history.
func New(cfg Config) *Provider {
	if cfg.StepPct <= 0 {
		cfg.StepPct = 0.5
	}
	if cfg.Basket == nil {
		cfg.Basket = DefaultBasket
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	p := &Provider{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	now := cfg.Now()
	for _, a := range cfg.Basket {
		if !wanted(cfg.Markets, a.Market) {
			continue
		}
		p.series = append(p.series, &series{
			asset: a,
			bars:  marketdata.SynthesizeHistory(p.rng, a.Price, a.BaseVolume, marketdata.HistoryPoints, now),
		})
	}
	return p
}

func wanted(markets []string, m string) bool {
	if len(markets) == 0 {
		return true
	}
	for _, x := range markets {
		if x == m {
			return true
		}
	}
	return false
}

func (p *Provider) Name() string { return "sim" }

// Fetch advances every price by one random step and returns the snapshots.
// It never fails.
func (p *Provider) Fetch(ctx context.Context) ([]model.AssetSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.cfg.Now().UTC()
	out := make([]model.AssetSnapshot, 0, len(p.series))
	for _, s := range p.series {
		p.step(s, now)
		a := model.NewAssetSnapshot(s.asset.Symbol, s.asset.Name, change(s), s.bars)
		a.Market = s.asset.Market
		a.UpdatedAt = now
		out = append(out, a)
	}
	return out, nil
}

// step walks the last close; a new day rolls the window forward.
func (p *Provider) step(s *series, now time.Time) {
	last := s.bars[len(s.bars)-1]
	pct := (p.rng.Float64()*2 - 1) * p.cfg.StepPct / 100
	price := last.Close * (1 + pct)
	if price <= 0 {
		price = last.Close
	}

	if now.Truncate(24 * time.Hour).After(last.TS) {
		s.bars = marketdata.AppendBar(p.rng, s.bars, price, s.asset.BaseVolume, now.Truncate(24*time.Hour))
		return
	}
	last.Close = price
	last.High = max(last.High, price)
	last.Low = min(last.Low, price)
	last.Volume += s.asset.BaseVolume * p.rng.Float64() * 0.01
	s.bars[len(s.bars)-1] = last
}

func change(s *series) float64 {
	n := len(s.bars)
	if n < 2 || s.bars[n-2].Close == 0 {
		return s.asset.Change
	}
	return (s.bars[n-1].Close/s.bars[n-2].Close - 1) * 100
}
