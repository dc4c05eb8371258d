// Package metrics exposes Prometheus instruments for the trading bot and a
// small HTTP server for /metrics and /healthz.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the papertrader service.
type Metrics struct {
	// Trading cycle
	CyclesTotal   *prometheus.CounterVec // labels: result=ok|panic
	CycleDuration prometheus.Histogram
	BotState      prometheus.Gauge // 0=idle, 1=sells, 2=buys
	BotEnabled    prometheus.Gauge
	CandidatesLen prometheus.Gauge
	AssetFailures prometheus.Counter

	// Ledger
	TradesTotal     *prometheus.CounterVec // labels: side, reason category
	RejectedTotal   *prometheus.CounterVec // labels: side
	Equity          prometheus.Gauge
	Cash            prometheus.Gauge
	OpenPositions   prometheus.Gauge
	PersistFailures prometheus.Counter

	// Market data
	MarketRefreshTotal    *prometheus.CounterVec // labels: result=ok|error
	MarketRefreshDuration prometheus.Histogram
	MarketAssets          prometheus.Gauge

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // gobreaker.State: 0=closed, 1=half-open, 2=open
	RedisCircuitBreakerTrips prometheus.Counter

	// Control surface
	WSClients      prometheus.Gauge
	EventDrops     *prometheus.CounterVec // labels: subscriber
	NotifyFailures prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_cycles_total",
			Help: "Trading cycles executed",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_cycle_duration_seconds",
			Help:    "Wall time of one trading cycle",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		BotState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_bot_state",
			Help: "Cycle state (0=idle, 1=evaluating sells, 2=evaluating buys)",
		}),
		BotEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_bot_enabled",
			Help: "1 while the bot schedule is active",
		}),
		CandidatesLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_buy_candidates",
			Help: "Buy candidates found in the last cycle",
		}),
		AssetFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_asset_evaluation_failures_total",
			Help: "Per-asset evaluations that failed and were skipped",
		}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_trades_total",
			Help: "Executed trades by side and reason category (exit reason, Score, Manual Trade)",
		}, []string{"side", "reason"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_trades_rejected_total",
			Help: "Signals rejected by the ledger",
		}, []string{"side"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_equity",
			Help: "Portfolio equity",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_cash",
			Help: "Portfolio cash balance",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_open_positions",
			Help: "Number of open positions",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_persist_failures_total",
			Help: "Portfolio saves that failed",
		}),

		MarketRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_market_refresh_total",
			Help: "Market data refresh attempts",
		}, []string{"result"}),
		MarketRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_market_refresh_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		MarketAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_market_assets",
			Help: "Assets in the current universe snapshot",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		EventDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_event_drops_total",
			Help: "Events dropped for a slow subscriber",
		}, []string{"subscriber"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_notify_failures_total",
			Help: "Trade alerts that could not be delivered",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.BotState,
		m.BotEnabled,
		m.CandidatesLen,
		m.AssetFailures,
		m.TradesTotal,
		m.RejectedTotal,
		m.Equity,
		m.Cash,
		m.OpenPositions,
		m.PersistFailures,
		m.MarketRefreshTotal,
		m.MarketRefreshDuration,
		m.MarketAssets,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.EventDrops,
		m.NotifyFailures,
	)

	return m
}
