package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"

	"papertrader/internal/bot"
	"papertrader/internal/bus"
	"papertrader/internal/execution"
	"papertrader/internal/marketdata"
	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	"papertrader/internal/store"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type env struct {
	router chi.Router
	bot    *bot.Bot
	ledger *portfolio.Ledger
	events *bus.FanOut[bot.DecisionLogEntry]
	hub    *Hub
}

func asset(symbol, market string, price float64) model.AssetSnapshot {
	bars := make([]model.Candle, 31)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = model.Candle{TS: start.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price, Volume: 1000}
	}
	a := model.NewAssetSnapshot(symbol, symbol, 0, bars)
	a.Market = market
	return a
}

func newEnv(t *testing.T, secret string) *env {
	t.Helper()
	u := marketdata.NewUniverse()
	err := u.Publish([]model.AssetSnapshot{
		asset("AAPL", marketdata.MarketUS, 150),
		asset("PKO", marketdata.MarketPL, 50),
		asset("BTC", marketdata.MarketCrypto, 64230),
	}, "test", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}

	mem := store.NewMemory()
	l := portfolio.NewLedger(mem, u.Price, nil)
	events := bus.New[bot.DecisionLogEntry](64)
	b, err := bot.New(bot.Deps{
		Ledger:   l,
		Market:   u,
		Executor: execution.NewPaperExecutor(0, nil),
		Config:   mem,
		Events:   events,
	}, bot.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub(events, b.RecentLogs, nil)
	return &env{
		router: NewRouter(Deps{Bot: b, Ledger: l, Universe: u, Hub: hub, TOTPSecret: secret}),
		bot:    b,
		ledger: l,
		events: events,
		hub:    hub,
	}
}

func (e *env) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPing(t *testing.T) {
	e := newEnv(t, "")
	rec := e.do(t, http.MethodGet, "/ping", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	e := newEnv(t, "")
	rec := e.do(t, http.MethodGet, "/api/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	// bot.State encodes as text only; read it back as a string.
	type statusView struct {
		statusResponse
		Bot struct {
			State string `json:"state"`
		} `json:"bot"`
	}
	resp := decode[statusView](t, rec)
	if len(resp.MarketData["us"]) != 1 || len(resp.MarketData["pl"]) != 1 || len(resp.MarketData["crypto"]) != 1 {
		t.Fatalf("market data not grouped: %v", resp.MarketData)
	}
	if resp.Source != "test" || resp.Portfolio == nil || !resp.Portfolio.Cash.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("unexpected status %+v", resp)
	}
	if resp.Bot.State != bot.StateIdle.String() || resp.ServerTime.IsZero() {
		t.Fatalf("bot=%+v serverTime=%s", resp.Bot, resp.ServerTime)
	}
}

func TestTrade(t *testing.T) {
	e := newEnv(t, "")

	rec := e.do(t, http.MethodPost, "/api/trade", tradeRequest{Symbol: "BTC", Type: "BUY", Qty: 1, Price: 64230}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[tradeResponse](t, rec)
	if !resp.Success || !resp.Portfolio.Cash.Equal(decimal.NewFromInt(35770)) {
		t.Fatalf("unexpected response %+v", resp)
	}

	tests := []struct {
		name string
		body any
		code int
		msg  string
	}{
		{"insufficient funds", tradeRequest{Symbol: "BTC", Type: "BUY", Qty: 1, Price: 64230}, http.StatusBadRequest, "Insufficient Funds"},
		{"insufficient holdings", tradeRequest{Symbol: "AAPL", Type: "SELL", Qty: 1, Price: 150}, http.StatusBadRequest, "Insufficient Holdings"},
		{"bad side", tradeRequest{Symbol: "AAPL", Type: "HOLD", Qty: 1, Price: 150}, http.StatusBadRequest, "side"},
		{"zero qty", tradeRequest{Symbol: "AAPL", Type: "BUY", Qty: 0, Price: 150}, http.StatusBadRequest, "invalid quantity"},
		{"unknown symbol at market", tradeRequest{Symbol: "DOGE", Type: "BUY", Qty: 1}, http.StatusNotFound, "unknown symbol"},
		{"missing symbol", tradeRequest{Type: "BUY", Qty: 1, Price: 1}, http.StatusBadRequest, "symbol"},
		{"malformed", "{", http.StatusBadRequest, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/trade", tt.body, nil)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if msg := decode[map[string]string](t, rec)["error"]; !strings.Contains(msg, tt.msg) {
				t.Fatalf("error = %q, want it to contain %q", msg, tt.msg)
			}
		})
	}

	if got := len(e.ledger.Snapshot().History); got != 1 {
		t.Fatalf("rejected trades must not be recorded, history = %d", got)
	}
}

func TestTrades_NewestFirstFromLedger(t *testing.T) {
	e := newEnv(t, "")
	e.do(t, http.MethodPost, "/api/trade", tradeRequest{Symbol: "AAPL", Type: "BUY", Qty: 10}, nil)
	e.do(t, http.MethodPost, "/api/trade", tradeRequest{Symbol: "PKO", Type: "BUY", Qty: 10}, nil)

	rec := e.do(t, http.MethodGet, "/api/trades?limit=1", nil, nil)
	trades := decode[[]model.TradeRecord](t, rec)
	if len(trades) != 1 || trades[0].Symbol != "PKO" {
		t.Fatalf("trades = %+v", trades)
	}
	if rec := e.do(t, http.MethodGet, "/api/trades?limit=x", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit code = %d", rec.Code)
	}
}

func TestBotConfig(t *testing.T) {
	e := newEnv(t, "")

	rec := e.do(t, http.MethodGet, "/api/bot/config", nil, nil)
	if got := decode[bot.Config](t, rec); got != bot.DefaultConfig() {
		t.Fatalf("config = %+v", got)
	}

	rec = e.do(t, http.MethodPost, "/api/bot/config", `{"buyScore":70,"stopLoss":3}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[bot.Config](t, rec)
	if got.BuyScore != 70 || got.StopLossPct != 3 || got.IntervalSeconds != 300 {
		t.Fatalf("patched config = %+v", got)
	}

	rec = e.do(t, http.MethodPost, "/api/bot/config", `{"positionSize":150}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid config code = %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/bot/logs", nil, nil)
	logs := decode[[]bot.DecisionLogEntry](t, rec)
	if len(logs) != 1 || !strings.HasPrefix(logs[0].Message, "Config updated") {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestRequireTOTP(t *testing.T) {
	e := newEnv(t, testSecret)
	body := `{"enabled":false}`

	if rec := e.do(t, http.MethodPost, "/api/bot/config", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing code: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodPost, "/api/bot/config", body, map[string]string{TOTPHeader: "000000"}); rec.Code != http.StatusUnauthorized {
		// 000000 could be valid by chance; vanishingly unlikely.
		t.Fatalf("wrong code: %d", rec.Code)
	}
	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if rec := e.do(t, http.MethodPost, "/api/bot/config", body, map[string]string{TOTPHeader: code}); rec.Code != http.StatusOK {
		t.Fatalf("valid code: %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(t, http.MethodGet, "/api/status", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("reads must not need a code: %d", rec.Code)
	}
}

func TestWebSocketFeed(t *testing.T) {
	e := newEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.hub.Run(ctx)

	// One entry before connecting so the backlog is replayed.
	e.do(t, http.MethodPost, "/api/bot/config", `{"buyScore":65}`, nil)

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var first Envelope
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if !first.Initial || !strings.HasPrefix(first.Data.Message, "Config updated") {
		t.Fatalf("expected backlog entry, got %+v", first)
	}

	deadline := time.Now().Add(3 * time.Second)
	for e.hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	e.events.Publish(bot.DecisionLogEntry{Time: time.Now(), Level: "INFO", Message: "live entry"})

	var live Envelope
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatal(err)
	}
	if live.Initial || live.Type != "log" || live.Data.Message != "live entry" {
		t.Fatalf("unexpected live frame %+v", live)
	}
}
