// Package marketdata owns the tradable universe: the latest per-asset
// snapshots with their OHLCV history, the providers that produce them and the
// refresher that keeps them current.
package marketdata

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"papertrader/internal/model"
)

// ErrEmptyUniverse is returned when a provider yields no assets.
var ErrEmptyUniverse = errors.New("empty universe")

// Snapshot is an immutable view of the universe. Nothing reachable from it
// may be modified after Publish.
type Snapshot struct {
	Assets    []model.AssetSnapshot
	Source    string
	FetchedAt time.Time
	index     map[string]int
}

// Universe publishes snapshots atomically; readers see either the old or the
// new snapshot, never a mix.
type Universe struct {
	cur atomic.Pointer[Snapshot]

	// Optional hook (metrics).
	OnPublish func(s *Snapshot)
}

// NewUniverse creates an empty universe.
func NewUniverse() *Universe {
	u := &Universe{}
	u.cur.Store(&Snapshot{index: map[string]int{}})
	return u
}

// Publish validates assets and swaps them in as the current snapshot. On any
// validation error the previous snapshot stays in place.
func (u *Universe) Publish(assets []model.AssetSnapshot, source string, at time.Time) error {
	if len(assets) == 0 {
		return ErrEmptyUniverse
	}
	s := &Snapshot{
		Assets:    make([]model.AssetSnapshot, 0, len(assets)),
		Source:    source,
		FetchedAt: at,
		index:     make(map[string]int, len(assets)),
	}
	var errs []error
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := s.index[a.Symbol]; dup {
			errs = append(errs, fmt.Errorf("asset %s: duplicate symbol", a.Symbol))
			continue
		}
		s.index[a.Symbol] = len(s.Assets)
		s.Assets = append(s.Assets, a.Clone())
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish %s: %w", source, errors.Join(errs...))
	}
	u.cur.Store(s)
	if u.OnPublish != nil {
		u.OnPublish(s)
	}
	return nil
}

// Current returns the current snapshot.
func (u *Universe) Current() *Snapshot { return u.cur.Load() }

// Assets returns the current assets in universe order.
func (u *Universe) Assets() []model.AssetSnapshot { return u.cur.Load().Assets }

// Lookup returns the asset for symbol.
func (u *Universe) Lookup(symbol string) (model.AssetSnapshot, bool) {
	return u.cur.Load().Lookup(symbol)
}

// Price returns the live price for symbol. Its signature matches
// portfolio.PriceLookup.
func (u *Universe) Price(symbol string) (float64, bool) {
	a, ok := u.Lookup(symbol)
	if !ok || a.Price <= 0 {
		return 0, false
	}
	return a.Price, true
}

// Lookup returns the asset for symbol within s.
func (s *Snapshot) Lookup(symbol string) (model.AssetSnapshot, bool) {
	i, ok := s.index[symbol]
	if !ok {
		return model.AssetSnapshot{}, false
	}
	return s.Assets[i], true
}

// ByMarket groups the assets by market, keeping universe order within each.
func (s *Snapshot) ByMarket() map[string][]model.AssetSnapshot {
	out := map[string][]model.AssetSnapshot{
		MarketUS:     {},
		MarketPL:     {},
		MarketCrypto: {},
	}
	for _, a := range s.Assets {
		out[a.Market] = append(out[a.Market], a)
	}
	return out
}
