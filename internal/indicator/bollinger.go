package indicator

import "math"

// Bands is a Bollinger envelope around a simple moving average.
type Bands struct {
	Middle float64 `json:"middle"`
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
}

// StdDev returns the population standard deviation of the trailing period
// values around their mean. Returns 0 when the series is too short.
func StdDev(series []float64, period int) float64 {
	mean, ok := SMA(series, period)
	if !ok {
		return 0
	}
	return StdDevAround(series, period, mean)
}

// StdDevAround is StdDev with a caller-supplied mean.
func StdDevAround(series []float64, period int, mean float64) float64 {
	if period <= 0 || len(series) < period {
		return 0
	}
	sq := 0.0
	for _, v := range series[len(series)-period:] {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(period))
}

// BollingerBands returns middle = SMA(period) and upper/lower at mult standard
// deviations. ok is false when the SMA is undefined.
func BollingerBands(series []float64, period int, mult float64) (Bands, bool) {
	mid, ok := SMA(series, period)
	if !ok {
		return Bands{}, false
	}
	sd := StdDevAround(series, period, mid)
	return Bands{
		Middle: mid,
		Upper:  mid + mult*sd,
		Lower:  mid - mult*sd,
	}, true
}

// DefaultBollinger uses the conventional 20 period, 2 deviation bands.
func DefaultBollinger(series []float64) (Bands, bool) {
	return BollingerBands(series, 20, 2)
}
