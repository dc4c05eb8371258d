package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/model"
)

func TestTradeAlert(t *testing.T) {
	rec := model.TradeRecord{
		Time:   time.Now(),
		Side:   model.SideSell,
		Symbol: "AAPL",
		Qty:    10,
		Price:  decimal.NewFromInt(145),
		Reason: "Stop Loss",
	}
	a := TradeAlert(rec)
	if a.Level != AlertWarning {
		t.Errorf("stop loss should be a warning, got %s", a.Level)
	}
	if a.Title != "SELL AAPL" {
		t.Errorf("title = %q", a.Title)
	}
	if !strings.Contains(a.Message, "1450.00") {
		t.Errorf("message should carry the notional, got %q", a.Message)
	}
	if a.Trade == nil || a.Trade.Symbol != "AAPL" {
		t.Errorf("alert should carry the trade, got %+v", a.Trade)
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	trade := model.TradeRecord{ID: "t1", Side: model.SideBuy, Symbol: "BTC", Qty: 1, Price: decimal.NewFromInt(64230)}
	err := NewWebhookNotifier(srv.URL).Send(context.Background(), TradeAlert(trade))
	if err != nil {
		t.Fatal(err)
	}
	if got["title"] != "BUY BTC" || got["level"] != "INFO" || got["service"] != "papertrader" {
		t.Fatalf("unexpected payload %v", got)
	}
	if tr, ok := got["trade"].(map[string]any); !ok || tr["id"] != "t1" || tr["price"] != "64230" {
		t.Fatalf("trade missing from payload: %v", got["trade"])
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error on 502")
	}
}

type failing struct{}

func (failing) Send(context.Context, Alert) error { return errors.New("down") }

func TestMulti_JoinsErrors(t *testing.T) {
	m := Multi{NewLogNotifier(nil), failing{}}
	if err := m.Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected joined error")
	}
	if err := (Multi{NewLogNotifier(nil)}).Send(context.Background(), Alert{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
