package strategy

import (
	"papertrader/internal/indicator"
	"papertrader/internal/model"
)

// ExitReason names why a position is closed. The constants are listed in
// precedence order: the first rule that matches wins.
type ExitReason string

const (
	ExitNone           ExitReason = ""
	ExitStopLoss       ExitReason = "Stop Loss"
	ExitTakeProfit     ExitReason = "Take Profit"
	ExitRSIOverbought  ExitReason = "RSI Overbought"
	ExitMACDDeathCross ExitReason = "MACD Death Cross"
)

// ExitDecision is the outcome of evaluating one open position.
type ExitDecision struct {
	Exit   bool       `json:"exit"`
	Reason ExitReason `json:"reason"`
	PnLPct float64    `json:"pnl_pct"` // fraction, -0.05 = -5%
	Price  float64    `json:"price"`
}

// EvaluateExit applies the exit rules to pos at the asset's current price:
// stop loss, take profit, RSI above 75, then a bearish MACD cross.
// Percentages are given in whole units (3 = 3%).
func EvaluateExit(pos model.Position, a model.AssetSnapshot, stopLossPct, takeProfitPct float64) ExitDecision {
	d := ExitDecision{Price: a.Price, PnLPct: pos.PnLPct(a.Price)}

	switch {
	case d.PnLPct <= -stopLossPct/100:
		d.Reason = ExitStopLoss
	case d.PnLPct >= takeProfitPct/100:
		d.Reason = ExitTakeProfit
	case indicator.DefaultRSI(a.Closes) > 75:
		d.Reason = ExitRSIOverbought
	case indicator.MACD(a.Closes).BearishCross():
		d.Reason = ExitMACDDeathCross
	}
	d.Exit = d.Reason != ExitNone
	return d
}
