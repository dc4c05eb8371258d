package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "MARKET_PROVIDER", "MARKET_REFRESH_SECONDS",
		"BOT_ENABLED", "BOT_INTERVAL_SECONDS", "BOT_POSITION_SIZE_PCT", "BOT_STOP_LOSS_PCT", "BOT_TAKE_PROFIT_PCT", "BOT_BUY_SCORE"} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.Port != "3001" || c.StoreBackend != BackendSQLite || c.MarketProvider != ProviderSim {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.MarketRefresh != 30*time.Second {
		t.Fatalf("refresh = %s", c.MarketRefresh)
	}
	want := BotDefaults{Enabled: false, IntervalSeconds: 300, PositionSizePct: 10, StopLossPct: 5, TakeProfitPct: 10, BuyScore: 60}
	if c.Bot != want {
		t.Fatalf("bot defaults = %+v, want %+v", c.Bot, want)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("MARKET_REFRESH_SECONDS", "5")
	t.Setenv("BOT_ENABLED", "true")
	t.Setenv("BOT_BUY_SCORE", "70")
	t.Setenv("BOT_STOP_LOSS_PCT", "3.5")
	t.Setenv("SLIPPAGE_BPS", "not-a-number")

	c := Load()
	if c.Port != "8080" || c.StoreBackend != BackendRedis {
		t.Fatalf("port=%s backend=%s", c.Port, c.StoreBackend)
	}
	if c.MarketRefresh != 5*time.Second {
		t.Fatalf("refresh = %s", c.MarketRefresh)
	}
	if !c.Bot.Enabled || c.Bot.BuyScore != 70 || c.Bot.StopLossPct != 3.5 {
		t.Fatalf("bot = %+v", c.Bot)
	}
	if c.SlippageBps != 0 {
		t.Fatalf("malformed value should fall back, got %v", c.SlippageBps)
	}
}

func TestLoad_AlphaVantage(t *testing.T) {
	tests := []struct {
		name, key, symbols string
		wantKey            string
		wantSymbols        []string
	}{
		{"unset", "", "", "", []string{"AAPL", "NVDA", "MSFT"}},
		{"placeholder key", "YOUR_ALPHA_VANTAGE_KEY", "", "", []string{"AAPL", "NVDA", "MSFT"}},
		{"key and symbols", " demo ", "aapl, ,tsla", "demo", []string{"AAPL", "TSLA"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AV_API_KEY", tt.key)
			t.Setenv("AV_SYMBOLS", tt.symbols)
			c := Load()
			if c.AlphaVantageKey != tt.wantKey {
				t.Fatalf("key = %q, want %q", c.AlphaVantageKey, tt.wantKey)
			}
			if strings.Join(c.AlphaVantageSymbols, ",") != strings.Join(tt.wantSymbols, ",") {
				t.Fatalf("symbols = %v, want %v", c.AlphaVantageSymbols, tt.wantSymbols)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.StoreBackend = "postgres" }},
		{"provider", func(c *Config) { c.MarketProvider = "yahoo" }},
		{"refresh", func(c *Config) { c.MarketRefresh = 0 }},
		{"slippage", func(c *Config) { c.SlippageBps = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
