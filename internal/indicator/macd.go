package indicator

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// MACDResult holds the latest MACD reading and the one before it, which is
// what crossover detection needs.
type MACDResult struct {
	MACD       float64 `json:"macd"`
	Signal     float64 `json:"signal"`
	Histogram  float64 `json:"histogram"`
	PrevMACD   float64 `json:"prev_macd"`
	PrevSignal float64 `json:"prev_signal"`
}

// MACD computes EMA(12) - EMA(26) over closes and its EMA(9) signal line.
// Returns the zero value when closes has fewer than 26 points or the MACD line
// has fewer than 9 points.
//
// When the MACD line has exactly 9 points there is no earlier signal value and
// PrevSignal equals Signal.
func MACD(closes []float64) MACDResult {
	if len(closes) < macdSlow {
		return MACDResult{}
	}

	fast := NewRollingEMA(macdFast)
	slow := NewRollingEMA(macdSlow)
	line := make([]float64, 0, len(closes)-macdSlow+1)
	for _, c := range closes {
		fast.Update(c)
		slow.Update(c)
		if slow.Ready() {
			line = append(line, fast.Value()-slow.Value())
		}
	}
	if len(line) < macdSignal {
		return MACDResult{}
	}

	sig := NewRollingEMA(macdSignal)
	prevSignal := 0.0
	prevReady := false
	for i, m := range line {
		if i == len(line)-1 {
			prevSignal, prevReady = sig.Value(), sig.Ready()
		}
		sig.Update(m)
	}
	if !prevReady {
		prevSignal = sig.Value()
	}

	n := len(line)
	return MACDResult{
		MACD:       line[n-1],
		Signal:     sig.Value(),
		Histogram:  line[n-1] - sig.Value(),
		PrevMACD:   line[n-2],
		PrevSignal: prevSignal,
	}
}

// BearishCross reports a histogram below zero right after the MACD line was
// above its signal.
func (m MACDResult) BearishCross() bool {
	return m.Histogram < 0 && m.PrevMACD > m.PrevSignal
}
