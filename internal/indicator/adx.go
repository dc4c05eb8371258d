package indicator

import "math"

// ADX returns the Average Directional Index. True range and directional
// movement are Wilder-smoothed into +DI/-DI, their DX is Wilder-smoothed again.
// Returns NeutralADX when len(highs) < 2*period.
func ADX(highs, lows, closes []float64, period int) float64 {
	n := min(len(highs), len(lows), len(closes))
	if period <= 0 || len(highs) < 2*period || n < 2*period {
		return NeutralADX
	}

	tr := NewSMMA(period)
	plusDM := NewSMMA(period)
	minusDM := NewSMMA(period)
	adx := NewSMMA(period)

	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]

		pdm, mdm := 0.0, 0.0
		if up > down && up > 0 {
			pdm = up
		}
		if down > up && down > 0 {
			mdm = down
		}

		trueRange := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		tr.Update(trueRange)
		plusDM.Update(pdm)
		minusDM.Update(mdm)
		if !tr.Ready() {
			continue
		}

		// Smoothed averages share the same scale, so the ratios equal Wilder's
		// running-sum form.
		dx := 0.0
		if t := tr.Value(); t > 0 {
			pdi := 100 * plusDM.Value() / t
			mdi := 100 * minusDM.Value() / t
			if sum := pdi + mdi; sum > 0 {
				dx = 100 * math.Abs(pdi-mdi) / sum
			}
		}
		adx.Update(dx)
	}

	if !adx.Ready() {
		return NeutralADX
	}
	return adx.Value()
}

// DefaultADX is ADX with the conventional 14 period.
func DefaultADX(highs, lows, closes []float64) float64 {
	return ADX(highs, lows, closes, 14)
}
