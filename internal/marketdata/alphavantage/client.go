// Package alphavantage fetches US stock quotes from the Alpha Vantage
// GLOBAL_QUOTE function, one request per symbol. As with the crypto feed only
// the quote is live; the daily history behind it is synthesized.
package alphavantage

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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"papertrader/internal/marketdata"
	"papertrader/internal/model"
)

const DefaultBaseURL = "https://www.alphavantage.co/query"

// DefaultSymbols are quoted when Config.Symbols is empty.
var DefaultSymbols = []string{"AAPL", "NVDA", "MSFT"}

// DefaultNames labels the default symbols.
var DefaultNames = map[string]string{
	"AAPL": "Apple Inc.",
	"NVDA": "NVIDIA Corp.",
	"MSFT": "Microsoft",
}

var (
	// ErrRateLimited is returned when the local limiter has no tokens and
	// there are no earlier quotes to serve.
	ErrRateLimited = errors.New("alphavantage: rate limited")
	// ErrNoQuote is returned when the API answers without a quote, which is
	// how it reports throttling and unknown symbols.
	ErrNoQuote = errors.New("alphavantage: no quote in response")
)

// Config holds client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Symbols []string
	Names   map[string]string
	Timeout time.Duration // per request; defaults to 5s
	// RequestsPerMinute bounds outgoing calls; defaults to 5, the free tier.
	RequestsPerMinute float64
	// Burst defaults to len(Symbols) so one refresh can quote every symbol.
	Burst int
	Seed  int64
}

// Client implements marketdata.Provider for the US segment.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]model.Candle
	last    []model.AssetSnapshot
}

type globalQuote struct {
	Quote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

type quote struct {
	symbol string
	price  float64
	volume float64
	change float64
}

// New creates a client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultSymbols
	}
	if cfg.Names == nil {
		cfg.Names = DefaultNames
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = len(cfg.Symbols)
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "alphavantage"))

	st := gobreaker.Settings{
		Name:    "alphavantage",
		Timeout: 60 * time.Second,
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

func (c *Client) Name() string { return "alphavantage" }

// State exposes the breaker state for health reporting.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

// Fetch quotes every configured symbol. Symbols that fail are skipped; the
// call fails only when none could be quoted. When the rate limit leaves no
// room for a full refresh the previous snapshots are returned unchanged.
func (c *Client) Fetch(ctx context.Context) ([]model.AssetSnapshot, error) {
	if !c.limiter.AllowN(time.Now(), len(c.cfg.Symbols)) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.last) == 0 {
			return nil, ErrRateLimited
		}
		c.log.Debug("rate limited, serving previous quotes")
		return cloneAll(c.last), nil
	}

	quotes := make([]quote, 0, len(c.cfg.Symbols))
	var errs []error
	for _, sym := range c.cfg.Symbols {
		res, err := c.breaker.Execute(func() (any, error) {
			return c.quote(ctx, sym)
		})
		if err != nil {
			c.log.Warn("quote failed", slog.String("symbol", sym), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		quotes = append(quotes, res.(quote))
	}
	if len(quotes) == 0 {
		if len(errs) == 0 {
			return nil, marketdata.ErrEmptyUniverse
		}
		return nil, fmt.Errorf("alphavantage: %w", errors.Join(errs...))
	}

	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.AssetSnapshot, 0, len(quotes))
	for _, q := range quotes {
		name := c.cfg.Names[q.symbol]
		if name == "" {
			name = q.symbol
		}
		a := model.NewAssetSnapshot(q.symbol, name, q.change, c.bars(q.symbol, q.price, max(q.volume, 1), now))
		a.Market = marketdata.MarketUS
		a.UpdatedAt = now
		out = append(out, a)
	}
	c.last = cloneAll(out)
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

func (c *Client) quote(ctx context.Context, symbol string) (quote, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the API key; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return quote{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return quote{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body globalQuote
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return quote{}, fmt.Errorf("decode: %w", err)
	}
	if body.Quote.Price == "" {
		if msg := body.Note + body.Information; msg != "" {
			return quote{}, fmt.Errorf("%w: %s", ErrNoQuote, msg)
		}
		return quote{}, ErrNoQuote
	}

	price, err := strconv.ParseFloat(body.Quote.Price, 64)
	if err != nil || price <= 0 {
		return quote{}, fmt.Errorf("bad price %q", body.Quote.Price)
	}
	out := quote{symbol: strings.ToUpper(symbol), price: price}
	if body.Quote.Symbol != "" {
		out.symbol = strings.ToUpper(body.Quote.Symbol)
	}
	out.volume, _ = strconv.ParseFloat(body.Quote.Volume, 64)
	out.change, _ = strconv.ParseFloat(strings.TrimSuffix(body.Quote.ChangePercent, "%"), 64)
	return out, nil
}

func cloneAll(in []model.AssetSnapshot) []model.AssetSnapshot {
	out := make([]model.AssetSnapshot, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
