package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"

	"papertrader/config"
	"papertrader/internal/api"
	"papertrader/internal/bot"
	"papertrader/internal/bus"
	"papertrader/internal/execution"
	"papertrader/internal/logger"
	"papertrader/internal/marketdata"
	"papertrader/internal/marketdata/alphavantage"
	"papertrader/internal/marketdata/coingecko"
	"papertrader/internal/marketdata/sim"
	"papertrader/internal/metrics"
	"papertrader/internal/model"
	"papertrader/internal/notification"
	"papertrader/internal/portfolio"
	"papertrader/internal/store"
	redisstore "papertrader/internal/store/redis"
	"papertrader/internal/store/sqlite"
	"papertrader/internal/strategy"
)

// backend bundles whichever store STORE_BACKEND selected.
type backend interface {
	store.PortfolioStore
	store.TradeJournal
	store.ConfigStore
}

func main() {
	cfg := config.Load()
	log := logger.Init("papertrader", logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("papertrader exited", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.StoreBackend)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg, log)
	metricsSrv.Start()

	// ---- Store ----
	st, journal, rdb, sqlDB, closeStore, err := openStore(ctx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer closeStore()
	health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)

	// ---- Market data ----
	universe := marketdata.NewUniverse()
	universe.OnPublish = func(s *marketdata.Snapshot) {
		prom.MarketAssets.Set(float64(len(s.Assets)))
		health.SetMarket(s.Source, s.FetchedAt)
	}
	refresher := marketdata.NewRefresher(newProvider(cfg, log), universe, cfg.MarketRefresh, log)
	refresher.OnSuccess = func(source string, n int, took time.Duration) {
		prom.MarketRefreshTotal.WithLabelValues("ok").Inc()
		prom.MarketRefreshDuration.Observe(took.Seconds())
	}
	refresher.OnFailure = func(err error) {
		prom.MarketRefreshTotal.WithLabelValues("error").Inc()
	}
	if err := refresher.Refresh(ctx); err != nil {
		log.Warn("initial market refresh failed", slog.Any("err", err))
	}
	go refresher.Run(ctx)

	// ---- Ledger ----
	ledger := portfolio.NewLedger(st, universe.Price, log)
	if journal != nil {
		ledger.SetJournal(journal)
	}
	ledger.OnSave = func(err error) {
		if err != nil {
			prom.PersistFailures.Inc()
		}
		health.SetStoreOK(err == nil, err)
	}
	ledger.OnRevalue = func(p *model.Portfolio) {
		prom.Equity.Set(p.Equity.InexactFloat64())
		prom.Cash.Set(p.Cash.InexactFloat64())
		prom.OpenPositions.Set(float64(len(p.Positions)))
	}
	if err := ledger.Load(ctx); err != nil {
		health.SetStoreOK(false, err)
		log.Error("portfolio load failed, starting from the default account", slog.Any("err", err))
	}
	ledger.Revalue(ctx)

	// ---- Bot ----
	executor := execution.NewPaperExecutor(cfg.SlippageBps, log)
	executor.OnReject = func(sig strategy.Signal, err error) {
		prom.RejectedTotal.WithLabelValues(string(sig.Action)).Inc()
	}

	notifier := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.AlertWebhookURL != "" {
		notifier = append(notifier, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}

	events := bus.New[bot.DecisionLogEntry](256)
	events.OnDrop = func(i int) {
		prom.EventDrops.WithLabelValues(strconv.Itoa(i)).Inc()
	}
	defer events.Close()

	b, err := bot.New(bot.Deps{
		Ledger:   ledger,
		Market:   universe,
		Executor: executor,
		Config:   st,
		Notifier: notifier,
		Metrics:  prom,
		Events:   events,
		Logger:   log,
	}, bot.Config{
		Enabled:         cfg.Bot.Enabled,
		IntervalSeconds: cfg.Bot.IntervalSeconds,
		PositionSizePct: cfg.Bot.PositionSizePct,
		StopLossPct:     cfg.Bot.StopLossPct,
		TakeProfitPct:   cfg.Bot.TakeProfitPct,
		BuyScore:        cfg.Bot.BuyScore,
	})
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	if err := b.Restore(ctx); err != nil {
		log.Warn("using default bot config", slog.Any("err", err))
	}
	health.SetBotEnabled(b.GetConfig().Enabled)
	b.Start(ctx)
	defer b.Stop()

	// ---- HTTP ----
	hub := api.NewHub(events, b.RecentLogs, log)
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	go hub.Run(ctx)

	var history api.TradeHistory
	if h, ok := journal.(api.TradeHistory); ok {
		history = h
	}
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Bot:        b,
			Ledger:     ledger,
			Universe:   universe,
			Journal:    history,
			Hub:        hub,
			TOTPSecret: cfg.ControlTOTPSecret,
			Logger:     log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Info("papertrader listening", slog.String("port", cfg.Port), slog.String("store", cfg.StoreBackend), slog.String("market", cfg.MarketProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// Keep health in step with the bot.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := b.Status()
				health.SetBotEnabled(status.Config.Enabled)
				if status.LastCycle != nil {
					health.SetLastCycle(status.LastCycle.StartedAt)
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Info("papertrader stopped")
	return nil
}

// openStore connects the configured backend. The returned clients are for
// liveness probes and may be nil.
func openStore(ctx context.Context, cfg *config.Config, prom *metrics.Metrics, log *slog.Logger) (backend, store.TradeJournal, *goredis.Client, *sql.DB, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("sqlite dir: %w", err)
		}
		s, err := sqlite.Open(cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		return s, s, nil, s.DB(), func() { s.Close() }, nil

	case config.BackendRedis:
		s, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			OnBreakerChange: func(_, to gobreaker.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == gobreaker.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			},
		}, log)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		return s, s, s.Client(), nil, func() { s.Close() }, nil

	default:
		m := store.NewMemory()
		return m, nil, nil, nil, func() {}, nil
	}
}

// newProvider builds the market data source. Each market segment is served by
// its live feed when one is configured, falling back to the simulator for that
// segment; the full simulator is the last resort.
func newProvider(cfg *config.Config, log *slog.Logger) marketdata.Provider {
	simAll := sim.New(sim.Config{Seed: cfg.SimSeed})
	liveCrypto := cfg.MarketProvider == config.ProviderCoinGecko
	liveUS := cfg.AlphaVantageKey != ""
	if !liveCrypto && !liveUS {
		return simAll
	}

	simMarket := func(m string) marketdata.Provider {
		return sim.New(sim.Config{Seed: cfg.SimSeed, Markets: []string{m}})
	}
	us := simMarket(marketdata.MarketUS)
	if liveUS {
		av := alphavantage.New(alphavantage.Config{
			APIKey:  cfg.AlphaVantageKey,
			BaseURL: cfg.AlphaVantageURL,
			Symbols: cfg.AlphaVantageSymbols,
			Seed:    cfg.SimSeed,
		}, log)
		us = marketdata.NewChain(log, av, us)
	}
	crypto := simMarket(marketdata.MarketCrypto)
	if liveCrypto {
		cg := coingecko.New(coingecko.Config{BaseURL: cfg.CoinGeckoURL, Seed: cfg.SimSeed}, log)
		crypto = marketdata.NewChain(log, cg, crypto)
	}
	return marketdata.NewChain(log, marketdata.NewMerge(log, us, simMarket(marketdata.MarketPL), crypto), simAll)
}
