package indicator

// RollingEMA calculates Exponential Moving Average.
// O(1) per update — no window storage needed.
type RollingEMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewRollingEMA creates a new EMA indicator with the given period.
func NewRollingEMA(period int) *RollingEMA {
	return &RollingEMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *RollingEMA) Name() string { return "EMA" }

func (e *RollingEMA) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA_prev + k*(v - EMA_prev): a constant input leaves it unchanged.
	e.current += e.multiplier * (v - e.current)
}

func (e *RollingEMA) Value() float64 { return e.current }
func (e *RollingEMA) Ready() bool    { return e.count >= e.period }

// EMA returns the final exponential moving average of series: seeded with the
// SMA of the first period values, then smoothed with k = 2/(period+1).
// ok is false when the series is shorter than period.
func EMA(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}
	return fold(NewRollingEMA(period), series), true
}

// EMASeries returns every defined EMA value, i.e. one per input from index
// period-1 onwards. Returns nil when the series is shorter than period.
func EMASeries(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nil
	}
	e := NewRollingEMA(period)
	out := make([]float64, 0, len(series)-period+1)
	for _, v := range series {
		e.Update(v)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out
}
