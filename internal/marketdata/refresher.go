package marketdata

import (
	"context"
	"log/slog"
	"time"

	"papertrader/internal/model"
)

// Refresher periodically fetches from a provider and publishes into a
// universe. A failed or empty fetch leaves the previous snapshot in place.
type Refresher struct {
	provider Provider
	universe *Universe
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	// Optional hooks (metrics).
	OnSuccess func(source string, assets int, took time.Duration)
	OnFailure func(err error)
}

// NewRefresher creates a refresher. interval <= 0 defaults to 60s.
func NewRefresher(p Provider, u *Universe, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		provider: p,
		universe: u,
		interval: interval,
		log:      logger.With(slog.String("component", "market_refresher")),
		now:      time.Now,
	}
}

// Refresh performs one fetch-and-publish. The returned error is informational;
// the universe is unchanged when it is non-nil.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := r.now()
	source := r.provider.Name()
	var (
		assets []model.AssetSnapshot
		err    error
	)
	if c, ok := r.provider.(*Chain); ok {
		source, assets, err = c.FetchFrom(ctx)
	} else {
		assets, err = r.provider.Fetch(ctx)
	}
	if err == nil {
		err = r.universe.Publish(assets, source, r.now().UTC())
	}
	if err != nil {
		r.log.Warn("market refresh failed, keeping last snapshot", slog.Any("err", err))
		if r.OnFailure != nil {
			r.OnFailure(err)
		}
		return err
	}

	took := r.now().Sub(start)
	r.log.Debug("market data updated",
		slog.String("source", source),
		slog.Int("assets", len(assets)),
		slog.Duration("took", took))
	if r.OnSuccess != nil {
		r.OnSuccess(source, len(assets), took)
	}
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
