// Package strategy turns indicator readings into trading decisions.
//
// Score ranks assets for entry, EvaluateExit decides whether an open position
// should be closed. Both are pure: they read an AssetSnapshot and never touch
// the portfolio. The bot turns their output into Signals and executes them
// through the ledger.
package strategy

import "fmt"

// Signal represents a trading decision emitted by the bot's cycle.
type Signal struct {
	StrategyName string  `json:"strategy_name"`
	Action       Action  `json:"action"` // BUY, SELL
	Symbol       string  `json:"symbol"`
	Qty          int64   `json:"qty"`
	Price        float64 `json:"price"`
	Score        int     `json:"score,omitempty"`
	Reason       string  `json:"reason"`
}

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// StrategyName tags every signal produced by the conviction strategy.
const StrategyName = "Conviction"

// ManualStrategyName tags user-placed trades. They fill at the requested price.
const ManualStrategyName = "Manual"

func (s Signal) String() string {
	return fmt.Sprintf("%s %d %s @ %.4f (%s)", s.Action, s.Qty, s.Symbol, s.Price, s.Reason)
}
