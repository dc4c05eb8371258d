// Package redis is the networked store: the portfolio and bot configuration
// as JSON strings and the trade journal as a capped list, all behind a
// circuit breaker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"papertrader/internal/model"
	"papertrader/internal/store"
)

const (
	defaultPrefix      = "papertrader"
	defaultJournalMax  = 1000
	defaultMaxFailures = 5
	defaultCoolDown    = 10 * time.Second
)

// Config configures the Redis store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key prefix, default "papertrader"

	// Circuit breaker: opens after MaxFailures consecutive failed commands
	// (default 5) and lets one trial command through after CoolDown
	// (default 10s).
	MaxFailures     uint32
	CoolDown        time.Duration
	OnBreakerChange func(from, to gobreaker.State)
}

// Store implements store.PortfolioStore, store.TradeJournal and
// store.ConfigStore on Redis.
type Store struct {
	client     *goredis.Client
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger
	journalMax int64

	portfolioKey string
	configKey    string
	tradesKey    string
}

// Connect dials Redis, pings it and returns a store on the connection.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := New(client, cfg, logger)
	s.log.Info("connected", slog.String("addr", cfg.Addr))
	return s, nil
}

// New wraps an existing client. Addr, Password and DB in cfg are ignored.
func New(client *goredis.Client, cfg Config, logger *slog.Logger) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = defaultCoolDown
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "redis"))

	st := gobreaker.Settings{
		Name:    "redis",
		Timeout: cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// A missing key is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, goredis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if cfg.OnBreakerChange != nil {
				cfg.OnBreakerChange(from, to)
			}
		},
	}

	return &Store{
		client:       client,
		breaker:      gobreaker.NewCircuitBreaker(st),
		log:          log,
		journalMax:   defaultJournalMax,
		portfolioKey: prefix + ":portfolio",
		configKey:    prefix + ":bot_config",
		tradesKey:    prefix + ":trades",
	}
}

// Client returns the underlying client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// BreakerState reports the circuit breaker state for health checks.
func (s *Store) BreakerState() gobreaker.State { return s.breaker.State() }

// exec runs fn through the circuit breaker.
func exec[T any](s *Store, fn func() (T, error)) (T, error) {
	res, err := s.breaker.Execute(func() (any, error) { return fn() })
	v, _ := res.(T)
	return v, err
}

// Load returns the stored portfolio, creating and persisting the default one
// when the key does not exist.
func (s *Store) Load(ctx context.Context) (*model.Portfolio, error) {
	data, err := exec(s, func() (string, error) {
		return s.client.Get(ctx, s.portfolioKey).Result()
	})
	if errors.Is(err, goredis.Nil) {
		pf := model.NewPortfolio()
		if err := s.Save(ctx, pf); err != nil {
			return nil, err
		}
		s.log.Info("created default portfolio")
		return pf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load portfolio: %w", err)
	}

	var pf model.Portfolio
	if err := json.Unmarshal([]byte(data), &pf); err != nil {
		return nil, fmt.Errorf("redis decode portfolio: %w", err)
	}
	return &pf, nil
}

// Save overwrites the portfolio document.
func (s *Store) Save(ctx context.Context, p *model.Portfolio) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	_, err = exec(s, func() (string, error) {
		return s.client.Set(ctx, s.portfolioKey, data, 0).Result()
	})
	if err != nil {
		return fmt.Errorf("redis save portfolio: %w", err)
	}
	return nil
}

// LoadConfig returns the stored bot configuration or store.ErrNotFound.
func (s *Store) LoadConfig(ctx context.Context) ([]byte, error) {
	data, err := exec(s, func() ([]byte, error) {
		return s.client.Get(ctx, s.configKey).Bytes()
	})
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load config: %w", err)
	}
	return data, nil
}

func (s *Store) SaveConfig(ctx context.Context, data []byte) error {
	_, err := exec(s, func() (string, error) {
		return s.client.Set(ctx, s.configKey, data, 0).Result()
	})
	if err != nil {
		return fmt.Errorf("redis save config: %w", err)
	}
	return nil
}

// RecordTrade appends a fill to the journal list, keeping the newest
// journalMax entries.
func (s *Store) RecordTrade(ctx context.Context, t model.TradeRecord) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	_, err = exec(s, func() ([]goredis.Cmder, error) {
		return s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.RPush(ctx, s.tradesKey, data)
			pipe.LTrim(ctx, s.tradesKey, -s.journalMax, -1)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("redis record trade: %w", err)
	}
	return nil
}

// RecentTrades returns the last limit journaled fills, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := exec(s, func() ([]string, error) {
		return s.client.LRange(ctx, s.tradesKey, int64(-limit), -1).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("redis read trades: %w", err)
	}

	trades := make([]model.TradeRecord, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var t model.TradeRecord
		if err := json.Unmarshal([]byte(raw[i]), &t); err != nil {
			s.log.Warn("skipping undecodable journal entry", slog.Any("err", err))
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
