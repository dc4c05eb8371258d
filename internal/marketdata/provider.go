package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"papertrader/internal/model"
)

// Market labels.
const (
	MarketUS     = "us"
	MarketPL     = "pl"
	MarketCrypto = "crypto"
)

// Provider fetches a full set of asset snapshots.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]model.AssetSnapshot, error)
}

// Chain tries each provider in order and returns the first non-empty result.
type Chain struct {
	providers []Provider
	log       *slog.Logger
}

// NewChain builds a fallback chain. The last provider should be one that
// cannot fail, such as the simulator.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, log: logger}
}

func (c *Chain) Name() string {
	name := "chain"
	for _, p := range c.providers {
		name += ":" + p.Name()
	}
	return name
}

// Fetch returns the first successful provider's assets. Errors from earlier
// providers are logged; if every provider fails they are joined.
func (c *Chain) Fetch(ctx context.Context) ([]model.AssetSnapshot, error) {
	_, assets, err := c.FetchFrom(ctx)
	return assets, err
}

// FetchFrom is Fetch that also reports which provider answered.
func (c *Chain) FetchFrom(ctx context.Context) (string, []model.AssetSnapshot, error) {
	var errs []error
	for _, p := range c.providers {
		assets, err := p.Fetch(ctx)
		if err == nil && len(assets) == 0 {
			err = ErrEmptyUniverse
		}
		if err != nil {
			c.log.Warn("provider failed, falling back",
				slog.String("provider", p.Name()), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return p.Name(), assets, nil
	}
	if len(errs) == 0 {
		return "", nil, ErrEmptyUniverse
	}
	return "", nil, errors.Join(errs...)
}

// Merge runs every provider and concatenates their assets, one provider per
// market segment. A failing segment is omitted.
type Merge struct {
	providers []Provider
	log       *slog.Logger
}

// NewMerge combines providers that each cover part of the universe.
func NewMerge(logger *slog.Logger, providers ...Provider) *Merge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merge{providers: providers, log: logger}
}

func (m *Merge) Name() string { return "merge" }

func (m *Merge) Fetch(ctx context.Context) ([]model.AssetSnapshot, error) {
	var out []model.AssetSnapshot
	var errs []error
	for _, p := range m.providers {
		assets, err := p.Fetch(ctx)
		if err != nil {
			m.log.Warn("segment fetch failed", slog.String("provider", p.Name()), slog.Any("err", err))
			errs = append(errs, err)
			continue
		}
		out = append(out, assets...)
	}
	if len(out) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrEmptyUniverse
	}
	return out, nil
}
