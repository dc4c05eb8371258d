package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func flat(n int, v float64) []float64 { return linear(n, v, 0) }

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestRollingSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after value 3: (100+102+104)/3 = 102.0000
	// SMA after value 4: (102+104+103)/3 = 103.0000
	// SMA after value 5: (104+103+105)/3 = 104.0000

	sma := NewRollingSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_MatchesRolling(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15, 16}
	rolling := NewRollingSMA(5)
	for _, p := range prices {
		rolling.Update(p)
	}
	got, ok := SMA(prices, 5)
	if !ok {
		t.Fatal("expected SMA(5) defined for 7 values")
	}
	assertClose(t, "SMA(5)", got, 14.0, 0.0001)
	assertClose(t, "SMA vs rolling", got, rolling.Value(), 0.0001)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestRollingEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// seed = (100+102+104)/3 = 102.0
	// value 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// value 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewRollingEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	// EMA(5): multiplier = 1/3
	// seed = (44+44.25+44.50+43.75+44.50)/5 = 44.20
	mult := 2.0 / 6.0
	prices := []float64{44, 44.25, 44.50, 43.75, 44.50, 44.25, 44.00}

	seed, ok := EMA(prices[:5], 5)
	if !ok {
		t.Fatal("expected seed to be defined")
	}
	assertClose(t, "EMA(5) seed", seed, 44.20, 0.0001)

	expected6 := 44.25*mult + 44.20*(1-mult)
	expected7 := 44.00*mult + expected6*(1-mult)

	got, _ := EMA(prices, 5)
	assertClose(t, "EMA(5) value 7", got, expected7, 0.0001)

	series := EMASeries(prices, 5)
	if len(series) != 3 {
		t.Fatalf("EMASeries len = %d, want 3", len(series))
	}
	assertClose(t, "EMASeries[1]", series[1], expected6, 0.0001)
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// seed = (100+102+104)/3 = 102.0
	// value 4: (102.0*2 + 103)/3 = 102.3333
	// value 5: (102.3333*2 + 105)/3 = 103.2222

	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		smma.Update(p)
		if smma.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, smma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Deltas over the first 6 prices:
	//   +0.34, -0.25, -0.48, +0.72, +0.50
	//   avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	//   RSI = 100 - 100/(1+2.13699) = 68.112
	// Then Wilder smoothing:
	//   +0.27 → 72.219, +0.32 → 76.658, +0.42 → 81.509
	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}

	assertClose(t, "RSI(5) value 6", RSI(prices[:6], 5), 68.112, 0.1)
	assertClose(t, "RSI(5) value 7", RSI(prices[:7], 5), 72.219, 0.1)
	assertClose(t, "RSI(5) value 8", RSI(prices[:8], 5), 76.658, 0.1)
	assertClose(t, "RSI(5) value 9", RSI(prices, 5), 81.509, 0.2)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	assertClose(t, "RSI all up", RSI(linear(10, 100, 1), 5), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	assertClose(t, "RSI all down", RSI(linear(10, 200, -1), 5), 0.0, 0.001)
}

func TestRSI_Flat_IsNeutral(t *testing.T) {
	// No movement at all: both averages are 0, which reads as neutral.
	assertClose(t, "RSI flat", RSI(flat(30, 100), 14), 50.0, 0.0001)
}

func TestRSI_ShortHistory_IsNeutral(t *testing.T) {
	for _, n := range []int{0, 1, 5, 14} {
		if got := RSI(linear(n, 100, 1), 14); got != NeutralRSI {
			t.Errorf("RSI on %d closes = %.4f, want %.1f", n, got, NeutralRSI)
		}
	}
	if got := RSI(linear(15, 100, 1), 14); got != 100 {
		t.Errorf("RSI on 15 rising closes = %.4f, want 100", got)
	}
}

func TestRSI_Bounded(t *testing.T) {
	// Deterministic zig-zag with drift.
	closes := make([]float64, 200)
	p := 100.0
	for i := range closes {
		switch i % 7 {
		case 0, 3, 5:
			p -= 1.7
		default:
			p += 1.1
		}
		closes[i] = p
	}
	for n := 15; n <= len(closes); n += 5 {
		got := RSI(closes[:n], 14)
		if got < 0 || got > 100 || math.IsNaN(got) {
			t.Fatalf("RSI over %d closes out of range: %.4f", n, got)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Cross-indicator: same data → correct ordering
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	prices := linear(30, 100, 1)
	sma5, _ := SMA(prices, 5)
	sma20, _ := SMA(prices, 20)
	ema5, _ := EMA(prices, 5)

	if sma5 <= sma20 {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: SMA5=%.2f, SMA20=%.2f", sma5, sma20)
	}
	if ema5 <= sma20 {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: EMA5=%.2f, SMA20=%.2f", ema5, sma20)
	}
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	prices := append(flat(20, 100), 120)
	sma, _ := SMA(prices, 10)
	ema, _ := EMA(prices, 10)

	if ema <= sma {
		t.Errorf("EMA should react more than SMA to sudden price jump: EMA=%.4f, SMA=%.4f", ema, sma)
	}
}

func TestRollingEMA_ConstantInputStaysFixed(t *testing.T) {
	for _, v := range []float64{0.1, 0.37, 145.37, 64230.01} {
		e := NewRollingEMA(12)
		for i := 0; i < 12; i++ {
			e.Update(v)
		}
		seed := e.Value()
		for i := 0; i < 50; i++ {
			e.Update(v)
			if e.Value() != seed {
				t.Fatalf("EMA(12) of constant %v drifted from %v to %v", v, seed, e.Value())
			}
		}
	}
}
