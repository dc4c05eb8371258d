package indicator

// RollingSMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type RollingSMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewRollingSMA creates a new SMA indicator with the given period.
func NewRollingSMA(period int) *RollingSMA {
	return &RollingSMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *RollingSMA) Name() string { return "SMA" }

func (s *RollingSMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *RollingSMA) Value() float64 { return s.current }
func (s *RollingSMA) Ready() bool    { return s.count >= s.period }

// SMA returns the mean of the trailing period values.
// ok is false when the series is shorter than period.
func SMA(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}
	return fold(NewRollingSMA(period), series[len(series)-period:]), true
}
