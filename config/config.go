package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Market providers accepted by MARKET_PROVIDER.
const (
	ProviderSim       = "sim"
	ProviderCoinGecko = "coingecko"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP
	Port        string
	MetricsAddr string

	// Persistence
	StoreBackend  string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string

	// Market data
	MarketProvider string
	MarketRefresh  time.Duration
	CoinGeckoURL   string
	SimSeed        int64

	// US quotes; empty AlphaVantageKey keeps the US segment simulated.
	AlphaVantageKey     string
	AlphaVantageURL     string
	AlphaVantageSymbols []string

	// Execution
	SlippageBps int64

	// Control and alerts
	ControlTOTPSecret string
	AlertWebhookURL   string

	// Logging
	LogLevel  string
	LogFormat string

	Bot BotDefaults
}

// BotDefaults seed the bot configuration when none has been persisted.
type BotDefaults struct {
	Enabled         bool
	IntervalSeconds int
	PositionSizePct float64
	StopLossPct     float64
	TakeProfitPct   float64
	BuyScore        int
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numbers fall back to the default with a warning.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		SQLitePath:    getEnv("SQLITE_PATH", "data/papertrader.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		MarketProvider: strings.ToLower(getEnv("MARKET_PROVIDER", ProviderSim)),
		MarketRefresh:  time.Duration(getInt("MARKET_REFRESH_SECONDS", 30)) * time.Second,
		CoinGeckoURL:   getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		SimSeed:        int64(getInt("SIM_SEED", 0)),

		AlphaVantageKey:     alphaVantageKey(),
		AlphaVantageURL:     getEnv("ALPHAVANTAGE_URL", "https://www.alphavantage.co/query"),
		AlphaVantageSymbols: getList("AV_SYMBOLS", []string{"AAPL", "NVDA", "MSFT"}),

		SlippageBps: int64(getInt("SLIPPAGE_BPS", 0)),

		ControlTOTPSecret: getEnv("CONTROL_TOTP_SECRET", ""),
		AlertWebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Bot: BotDefaults{
			Enabled:         getBool("BOT_ENABLED", false),
			IntervalSeconds: getInt("BOT_INTERVAL_SECONDS", 300),
			PositionSizePct: getFloat("BOT_POSITION_SIZE_PCT", 10),
			StopLossPct:     getFloat("BOT_STOP_LOSS_PCT", 5),
			TakeProfitPct:   getFloat("BOT_TAKE_PROFIT_PCT", 10),
			BuyScore:        getInt("BOT_BUY_SCORE", 60),
		},
	}
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.MarketProvider {
	case ProviderSim, ProviderCoinGecko:
	default:
		return fmt.Errorf("config: unknown MARKET_PROVIDER %q", c.MarketProvider)
	}
	if c.MarketRefresh <= 0 {
		return fmt.Errorf("config: MARKET_REFRESH_SECONDS must be positive")
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("config: SLIPPAGE_BPS must not be negative")
	}
	return nil
}

// placeholderAVKey is the value shipped in sample env files.
const placeholderAVKey = "YOUR_ALPHA_VANTAGE_KEY"

func alphaVantageKey() string {
	k := strings.TrimSpace(os.Getenv("AV_API_KEY"))
	if k == placeholderAVKey {
		return ""
	}
	return k
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("invalid integer env var, using default", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		slog.Warn("invalid number env var, using default", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("invalid boolean env var, using default", slog.String("key", key), slog.String("value", v))
		return fallback
	}
	return b
}

// getList splits a comma-separated value, upper-casing and dropping blanks.
func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
