package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StoreBackend  string    `json:"store_backend"`
	StoreOK       bool      `json:"store_ok"`
	LastSaveError string    `json:"last_save_error,omitempty"`
	LastMarketAt  time.Time `json:"last_market_at"`
	MarketSource  string    `json:"market_source"`
	BotEnabled    bool      `json:"bot_enabled"`
	LastCycleAt   time.Time `json:"last_cycle_at"`

	// Liveness probe results
	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	// MaxMarketAge marks the service degraded when market data is older.
	MaxMarketAge time.Duration `json:"-"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(backend string) *HealthStatus {
	return &HealthStatus{
		StoreBackend: backend,
		StoreOK:      true,
		StartedAt:    time.Now(),
		MaxMarketAge: 10 * time.Minute,
	}
}

func (h *HealthStatus) SetStoreOK(v bool, err error) {
	h.mu.Lock()
	h.StoreOK = v
	h.LastSaveError = ""
	if err != nil {
		h.LastSaveError = err.Error()
	}
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarket(source string, at time.Time) {
	h.mu.Lock()
	h.MarketSource = source
	h.LastMarketAt = at
	h.mu.Unlock()
}

func (h *HealthStatus) SetBotEnabled(v bool) {
	h.mu.Lock()
	h.BotEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycle(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.record(err, time.Since(start))
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	h.record(err, time.Since(start))
}

func (h *HealthStatus) record(err error, latency time.Duration) {
	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	marketAge := ""
	if !h.LastMarketAt.IsZero() {
		age := time.Since(h.LastMarketAt)
		marketAge = age.Round(time.Second).String()
		if h.MaxMarketAge > 0 && age > h.MaxMarketAge {
			overallStatus = "degraded"
		}
	} else {
		overallStatus = "degraded"
	}
	if !h.StoreOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		StoreBackend   string  `json:"store_backend"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		LastSaveError  string  `json:"last_save_error,omitempty"`
		MarketSource   string  `json:"market_source"`
		MarketAge      string  `json:"market_age"`
		BotEnabled     bool    `json:"bot_enabled"`
		LastCycleAt    string  `json:"last_cycle_at"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		StoreBackend:   h.StoreBackend,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		LastSaveError:  h.LastSaveError,
		MarketSource:   h.MarketSource,
		MarketAge:      marketAge,
		BotEnabled:     h.BotEnabled,
		LastCycleAt:    h.LastCycleAt.Format(time.RFC3339),
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. gatherer may be nil to use
// the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		log:  logger.With(slog.String("component", "metrics")),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", slog.Any("err", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
