package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"

	"papertrader/internal/marketdata"
)

const marketsJSON = `[
 {"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":64230,"price_change_percentage_24h":2.4,"total_volume":30000},
 {"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3450,"price_change_percentage_24h":-1.2,"total_volume":400000},
 {"id":"broken","symbol":"bad","name":"Broken","current_price":0}
]`

func newTestClient(url string) *Client {
	return New(Config{BaseURL: url, RequestsPerMinute: 600, Burst: 100, Seed: 1}, nil)
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("vs_currency"); got != "usd" {
			t.Errorf("vs_currency = %q", got)
		}
		if !strings.Contains(r.URL.Query().Get("ids"), "bitcoin") {
			t.Errorf("ids = %q", r.URL.Query().Get("ids"))
		}
		w.Write([]byte(marketsJSON))
	}))
	defer srv.Close()

	assets, err := newTestClient(srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets (zero price skipped), got %d", len(assets))
	}
	btc := assets[0]
	if btc.Symbol != "BTC" || btc.Price != 64230 || btc.Change != 2.4 || btc.Market != marketdata.MarketCrypto {
		t.Fatalf("unexpected BTC snapshot: %+v", btc)
	}
	if btc.Len() != marketdata.HistoryPoints {
		t.Fatalf("expected %d bars, got %d", marketdata.HistoryPoints, btc.Len())
	}
	if err := btc.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestClient_HistoryTracksQuote(t *testing.T) {
	var price atomic.Value
	price.Store("64230")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":` + price.Load().(string) + `}]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	first, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	price.Store("65000")
	second, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Price != 65000 {
		t.Fatalf("expected price 65000, got %v", second[0].Price)
	}
	n := first[0].Len()
	if first[0].Closes[n-2] != second[0].Closes[n-2] {
		t.Fatal("earlier history should be stable between intraday fetches")
	}
}

func TestClient_ErrorStatusTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
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

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(marketsJSON))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestsPerMinute: 1}, nil)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestClient_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Fetch(context.Background()); !errors.Is(err, marketdata.ErrEmptyUniverse) {
		t.Fatalf("expected ErrEmptyUniverse, got %v", err)
	}
}
