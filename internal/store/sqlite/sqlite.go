// Package sqlite is the file-backed store: the portfolio as a single JSON
// document, the bot configuration, and an append-only trade journal.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
	"papertrader/internal/store"
)

// Store implements store.PortfolioStore, store.TradeJournal and
// store.ConfigStore on one SQLite database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database at path in WAL mode and applies the
// schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &Store{db: db, log: logger.With(slog.String("component", "sqlite"))}
	s.log.Info("opened database", slog.String("path", path))
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS portfolio (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bot_config (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			id        TEXT    NOT NULL UNIQUE,
			side      TEXT    NOT NULL,
			symbol    TEXT    NOT NULL,
			qty       INTEGER NOT NULL,
			price     TEXT    NOT NULL,
			reason    TEXT,
			filled_at TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	`)
	return err
}

// Load returns the stored portfolio. When none exists yet the default account
// is created and persisted.
func (s *Store) Load(ctx context.Context) (*model.Portfolio, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM portfolio WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		pf := model.NewPortfolio()
		if err := s.Save(ctx, pf); err != nil {
			return nil, err
		}
		s.log.Info("created default portfolio")
		return pf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load portfolio: %w", err)
	}

	var pf model.Portfolio
	if err := json.Unmarshal([]byte(data), &pf); err != nil {
		return nil, fmt.Errorf("sqlite decode portfolio: %w", err)
	}
	return &pf, nil
}

// Save upserts the portfolio document.
func (s *Store) Save(ctx context.Context, p *model.Portfolio) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO portfolio (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save portfolio: %w", err)
	}
	return nil
}

// LoadConfig returns the stored bot configuration or store.ErrNotFound.
func (s *Store) LoadConfig(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bot_config WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load config: %w", err)
	}
	return []byte(data), nil
}

func (s *Store) SaveConfig(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_config (id, data, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save config: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
