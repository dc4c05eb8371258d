package bot

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid bot config")

// Config holds the bot's trading parameters. Percentages are whole units
// (5 = 5%).
type Config struct {
	Enabled         bool    `json:"enabled"`
	IntervalSeconds int     `json:"interval"`
	PositionSizePct float64 `json:"positionSize"`
	StopLossPct     float64 `json:"stopLoss"`
	TakeProfitPct   float64 `json:"takeProfit"`
	BuyScore        int     `json:"buyScore"`
}

// DefaultConfig is the configuration of a fresh install: disabled, five
// minute cycles, 10% positions, 5% stop loss, 10% take profit, buy at 60.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		IntervalSeconds: 300,
		PositionSizePct: 10,
		StopLossPct:     5,
		TakeProfitPct:   10,
		BuyScore:        60,
	}
}

// Interval returns the cycle period.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	switch {
	case c.IntervalSeconds <= 0:
		return fmt.Errorf("%w: interval must be > 0, got %d", ErrInvalidConfig, c.IntervalSeconds)
	case c.PositionSizePct <= 0 || c.PositionSizePct > 100:
		return fmt.Errorf("%w: positionSize must be in (0,100], got %v", ErrInvalidConfig, c.PositionSizePct)
	case c.StopLossPct <= 0:
		return fmt.Errorf("%w: stopLoss must be > 0, got %v", ErrInvalidConfig, c.StopLossPct)
	case c.TakeProfitPct <= 0:
		return fmt.Errorf("%w: takeProfit must be > 0, got %v", ErrInvalidConfig, c.TakeProfitPct)
	case c.BuyScore < 0 || c.BuyScore > 100:
		return fmt.Errorf("%w: buyScore must be in [0,100], got %d", ErrInvalidConfig, c.BuyScore)
	}
	return nil
}

// ConfigPatch is a partial update; nil fields are left unchanged.
type ConfigPatch struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	IntervalSeconds *int     `json:"interval,omitempty"`
	PositionSizePct *float64 `json:"positionSize,omitempty"`
	StopLossPct     *float64 `json:"stopLoss,omitempty"`
	TakeProfitPct   *float64 `json:"takeProfit,omitempty"`
	BuyScore        *int     `json:"buyScore,omitempty"`
}

// Apply returns c with the patch's non-nil fields overwritten.
func (p ConfigPatch) Apply(c Config) Config {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.IntervalSeconds != nil {
		c.IntervalSeconds = *p.IntervalSeconds
	}
	if p.PositionSizePct != nil {
		c.PositionSizePct = *p.PositionSizePct
	}
	if p.StopLossPct != nil {
		c.StopLossPct = *p.StopLossPct
	}
	if p.TakeProfitPct != nil {
		c.TakeProfitPct = *p.TakeProfitPct
	}
	if p.BuyScore != nil {
		c.BuyScore = *p.BuyScore
	}
	return c
}
