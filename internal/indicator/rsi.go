package indicator

// RollingRSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per value — no history scans.
type RollingRSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRollingRSI creates a new RSI indicator with the given period (typically 14).
func NewRollingRSI(period int) *RollingRSI {
	return &RollingRSI{period: period, current: NeutralRSI}
}

func (r *RollingRSI) Name() string { return "RSI" }

func (r *RollingRSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First value — just record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *RollingRSI) Value() float64 { return r.current }
func (r *RollingRSI) Ready() bool    { return r.count > r.period }

// rsiFrom maps average gain/loss to [0,100]. A series with no movement at all
// stays at the neutral value instead of pinning to 100.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return NeutralRSI
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSI returns the Wilder RSI of closes. Returns NeutralRSI when there are
// fewer than period+1 closes.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return NeutralRSI
	}
	return fold(NewRollingRSI(period), closes)
}

// DefaultRSI is RSI with the conventional 14 period.
func DefaultRSI(closes []float64) float64 { return RSI(closes, 14) }
