// Package coingecko fetches live crypto quotes from the CoinGecko
// /coins/markets endpoint. Only the current quote is live; the daily history
// around it is synthesized.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"papertrader/internal/marketdata"
	"papertrader/internal/model"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// DefaultIDs are the coins requested when Config.IDs is empty.
var DefaultIDs = []string{"bitcoin", "ethereum", "solana", "cardano", "ripple"}

// ErrRateLimited is returned when the local limiter has no token available.
var ErrRateLimited = errors.New("coingecko: rate limited")

// Config holds client configuration.
type Config struct {
	BaseURL string
	IDs     []string
	Timeout time.Duration // per request; defaults to 3s
	// RequestsPerMinute bounds outgoing calls; defaults to 10.
	RequestsPerMinute float64
	Burst             int
	Seed              int64
}

// Client implements marketdata.Provider.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]model.Candle
}

type coin struct {
	ID        string   `json:"id"`
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Price     float64  `json:"current_price"`
	Change24h *float64 `json:"price_change_percentage_24h"`
	Volume    float64  `json:"total_volume"`
}

// New creates a client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.IDs) == 0 {
		cfg.IDs = DefaultIDs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "coingecko"))

	st := gobreaker.Settings{
		Name:     "coingecko",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		history: make(map[string][]model.Candle),
	}
}

func (c *Client) Name() string { return "coingecko" }

// State exposes the breaker state for health reporting.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// Fetch returns one snapshot per coin, in the order CoinGecko ranks them.
func (c *Client) Fetch(ctx context.Context) ([]model.AssetSnapshot, error) {
	if !c.limiter.Allow() {
		return nil, ErrRateLimited
	}
	res, err := c.breaker.Execute(func() (any, error) {
		return c.markets(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko markets: %w", err)
	}
	coins := res.([]coin)
	if len(coins) == 0 {
		return nil, marketdata.ErrEmptyUniverse
	}

	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.AssetSnapshot, 0, len(coins))
	for _, k := range coins {
		if k.Price <= 0 || k.Symbol == "" {
			continue
		}
		sym := strings.ToUpper(k.Symbol)
		bars := c.bars(sym, k.Price, max(k.Volume, 1), now)
		var change float64
		if k.Change24h != nil {
			change = *k.Change24h
		}
		a := model.NewAssetSnapshot(sym, k.Name, change, bars)
		a.Market = marketdata.MarketCrypto
		a.UpdatedAt = now
		out = append(out, a)
	}
	return out, nil
}

// bars keeps a per-symbol synthesized history whose last close tracks the
// live quote. Must be called with mu held.
func (c *Client) bars(sym string, price, volume float64, now time.Time) []model.Candle {
	bars, ok := c.history[sym]
	day := now.Truncate(24 * time.Hour)
	switch {
	case !ok:
		bars = marketdata.SynthesizeHistory(c.rng, price, volume, marketdata.HistoryPoints, now)
	case day.After(bars[len(bars)-1].TS):
		bars = marketdata.AppendBar(c.rng, bars, price, volume, day)
	default:
		bars = append([]model.Candle(nil), bars...)
		last := &bars[len(bars)-1]
		last.Close = price
		last.High = max(last.High, price)
		last.Low = min(last.Low, price)
		last.Volume = volume
	}
	c.history[sym] = bars
	return bars
}

func (c *Client) markets(ctx context.Context) ([]coin, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(c.cfg.IDs, ","))
	q.Set("order", "market_cap_desc")
	q.Set("per_page", fmt.Sprint(len(c.cfg.IDs)))
	q.Set("page", "1")
	q.Set("sparkline", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var coins []coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return coins, nil
}
