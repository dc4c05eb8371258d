package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"

	"papertrader/internal/marketdata"
	"papertrader/internal/marketdata/sim"
)

var prices = map[string]string{"AAPL": "173.5000", "NVDA": "885.2000", "MSFT": "420.0000"}

func quoteJSON(symbol, price string) string {
	return fmt.Sprintf(`{"Global Quote": {"01. symbol": %q, "02. open": "170.0000", "05. price": %q,
 "06. volume": "55000000", "07. latest trading day": "2024-03-01", "10. change percent": "1.2400%%"}}`, symbol, price)
}

func quoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "GLOBAL_QUOTE" || q.Get("apikey") != "demo" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		sym := q.Get("symbol")
		p, ok := prices[sym]
		if !ok {
			w.Write([]byte(`{"Global Quote": {}}`))
			return
		}
		w.Write([]byte(quoteJSON(sym, p)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string, symbols ...string) *Client {
	return New(Config{APIKey: "demo", BaseURL: url, Symbols: symbols, RequestsPerMinute: 600, Burst: 100, Seed: 1}, nil)
}

func TestClient_Fetch(t *testing.T) {
	srv := quoteServer(t)

	assets, err := newTestClient(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(assets))
	}
	aapl := assets[0]
	if aapl.Symbol != "AAPL" || aapl.Name != "Apple Inc." || aapl.Price != 173.5 || aapl.Change != 1.24 || aapl.Market != marketdata.MarketUS {
		t.Fatalf("unexpected AAPL snapshot: %+v", aapl)
	}
	if aapl.Len() != marketdata.HistoryPoints {
		t.Fatalf("expected %d bars, got %d", marketdata.HistoryPoints, aapl.Len())
	}
	if err := aapl.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestClient_SkipsSymbolsWithoutQuote(t *testing.T) {
	srv := quoteServer(t)

	assets, err := newTestClient(srv.URL, "AAPL", "ZZZZ").Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(assets) != 1 || assets[0].Symbol != "AAPL" {
		t.Fatalf("expected only AAPL, got %+v", assets)
	}
}

func TestClient_ThrottleNoteIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "AAPL").Fetch(context.Background())
	if !errors.Is(err, ErrNoQuote) {
		t.Fatalf("expected ErrNoQuote, got %v", err)
	}
}

func TestClient_ErrorStatusTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "AAPL")
	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background()); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if c.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker open, got %s", c.State())
	}
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("open breaker should not reach the server, calls=%d", calls.Load())
	}
}

func TestClient_RateLimitedServesPreviousQuotes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(quoteJSON("AAPL", "173.5000")))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "demo", BaseURL: srv.URL, Symbols: []string{"AAPL"}, RequestsPerMinute: 1}, nil)
	first, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected previous quotes, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("rate-limited fetch reached the server, calls=%d", calls.Load())
	}
	if len(second) != 1 || second[0].Price != first[0].Price {
		t.Fatalf("expected the previous AAPL quote, got %+v", second)
	}
}

func TestClient_RateLimitedWithoutQuotes(t *testing.T) {
	c := New(Config{APIKey: "demo", BaseURL: "http://127.0.0.1:0", Symbols: []string{"AAPL", "MSFT"}, Burst: 1}, nil)
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestChain_FallsBackToSimulatedSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fallback := sim.New(sim.Config{Seed: 1, Markets: []string{marketdata.MarketUS}})
	chain := marketdata.NewChain(nil, newTestClient(srv.URL, "AAPL"), fallback)
	from, assets, err := chain.FetchFrom(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if from != "sim" || len(assets) == 0 {
		t.Fatalf("expected simulated assets, got %s %+v", from, assets)
	}
	for _, a := range assets {
		if a.Market != marketdata.MarketUS {
			t.Fatalf("fallback leaked %s asset %s", a.Market, a.Symbol)
		}
	}
}
