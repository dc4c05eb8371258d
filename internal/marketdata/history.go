package marketdata

import (
	"math"
	"math/rand"
	"time"

	"papertrader/internal/model"
)

// HistoryPoints is the length of the synthesized daily history: today plus
// the previous 30 days.
const HistoryPoints = 31

// SynthesizeHistory builds daily bars ending at price on day end, walking
// backwards with up to ±2.5% moves per day. The last close equals price.
func SynthesizeHistory(rng *rand.Rand, price, baseVolume float64, points int, end time.Time) []model.Candle {
	if points < 1 {
		points = 1
	}
	day := end.UTC().Truncate(24 * time.Hour)
	closes := make([]float64, points)
	p := price
	for i := points - 1; i >= 0; i-- {
		closes[i] = p
		p = p / (1 + (rng.Float64()-0.5)*0.05)
	}

	bars := make([]model.Candle, points)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = model.Candle{
			TS:     day.AddDate(0, 0, i-(points-1)),
			Open:   open,
			High:   math.Max(open, c) * (1 + rng.Float64()*0.01),
			Low:    math.Min(open, c) * (1 - rng.Float64()*0.01),
			Close:  c,
			Volume: baseVolume * (0.5 + rng.Float64()),
		}
	}
	return bars
}

// AppendBar shifts bars left by one and appends a new bar closing at price.
// The history length is preserved.
func AppendBar(rng *rand.Rand, bars []model.Candle, price, baseVolume float64, at time.Time) []model.Candle {
	if len(bars) == 0 {
		return SynthesizeHistory(rng, price, baseVolume, 1, at)
	}
	open := bars[len(bars)-1].Close
	next := model.Candle{
		TS:     at.UTC(),
		Open:   open,
		High:   math.Max(open, price) * (1 + rng.Float64()*0.005),
		Low:    math.Min(open, price) * (1 - rng.Float64()*0.005),
		Close:  price,
		Volume: baseVolume * (0.5 + rng.Float64()),
	}
	out := make([]model.Candle, 0, len(bars))
	out = append(out, bars[1:]...)
	return append(out, next)
}
