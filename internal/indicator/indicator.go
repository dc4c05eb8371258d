// Package indicator provides technical indicator calculations over price series.
//
// Two layers are offered. The streaming accumulators (RollingSMA, RollingEMA,
// RollingRSI, SMMA) receive one value at a time and implement Indicator. The
// series functions (SMA, EMA, RSI, MACD, ADX, BollingerBands, StdDev) fold an
// ordered series, oldest first, through those accumulators. Series functions
// never fail: when history is too short they return a documented neutral
// default.
package indicator

// Neutral defaults returned on insufficient history.
const (
	NeutralRSI = 50.0
	NeutralADX = 20.0
)

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// fold feeds series into ind in order and returns the final value.
func fold(ind Indicator, series []float64) float64 {
	for _, v := range series {
		ind.Update(v)
	}
	return ind.Value()
}
