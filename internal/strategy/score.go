package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"papertrader/internal/indicator"
	"papertrader/internal/model"
)

// MinHistory is the number of closes an asset needs before it is scored.
const MinHistory = 30

// relTol is the relative margin a reading must clear before a "greater than"
// rule fires, so float noise on flat series never counts as a signal.
const relTol = 1e-9

// Reason labels attached to a score, in evaluation order.
const (
	ReasonRSINeutral    = "RSI Neutral"
	ReasonRSIOversold   = "RSI Oversold"
	ReasonRSIOverbought = "RSI Overbought"
	ReasonMACDBullish   = "MACD Bullish"
	ReasonVolumeSpike   = "Volume Spike"
	ReasonNearLowerBB   = "Near Lower BB"
	ReasonNearUpperBB   = "Near Upper BB"
	ReasonAboveEMA20    = "Price > EMA20"
	ReasonStrongTrend   = "Strong Trend"
)

// Result is an asset's conviction score with the rules that fired.
type Result struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// Summary renders the reasons as one line, e.g. "RSI Neutral, MACD Bullish".
func (r Result) Summary() string {
	return strings.Join(r.Reasons, ", ")
}

// Score combines RSI, MACD, volume, Bollinger, EMA20 and ADX readings into a
// score in [0,100]. Assets with fewer than MinHistory closes score 0.
func Score(a model.AssetSnapshot) Result {
	closes := a.Closes
	res := Result{Reasons: []string{}}
	if len(closes) < MinHistory {
		return res
	}
	price := closes[len(closes)-1]

	add := func(w int, reason string) {
		res.Score += w
		res.Reasons = append(res.Reasons, reason)
	}

	rsi := indicator.DefaultRSI(closes)
	switch {
	case rsi >= 40 && rsi <= 60:
		add(20, ReasonRSINeutral)
	case rsi < 30:
		add(20, ReasonRSIOversold)
	case rsi > 75:
		add(-15, ReasonRSIOverbought)
	}

	if indicator.MACD(closes).Histogram > relTol*math.Abs(price) {
		add(20, ReasonMACDBullish)
	}

	if volumeSpike(a.Volumes) {
		add(15, ReasonVolumeSpike)
	}

	if bb, ok := indicator.DefaultBollinger(closes); ok {
		if price <= bb.Lower*1.02 {
			add(15, ReasonNearLowerBB)
		} else if price >= bb.Upper*0.98 {
			add(-10, ReasonNearUpperBB)
		}
	}

	if ema20, ok := indicator.EMA(closes, 20); ok && price > ema20+relTol*math.Abs(ema20) {
		add(10, ReasonAboveEMA20)
	}

	if indicator.DefaultADX(a.Highs, a.Lows, closes) > 25 {
		add(10, ReasonStrongTrend)
	}

	res.Score = min(max(res.Score, 0), 100)
	return res
}

// volumeSpike compares the last volume against the mean of the previous 20.
func volumeSpike(vols []float64) bool {
	n := len(vols)
	if n < 2 {
		return false
	}
	prior := vols[max(0, n-21) : n-1]
	sum := 0.0
	for _, v := range prior {
		sum += v
	}
	return vols[n-1] > 1.5*(sum/float64(len(prior)))
}

// Candidate is a scored asset eligible for entry.
type Candidate struct {
	Asset  model.AssetSnapshot
	Result Result
}

// ScoreChecked validates a before scoring it and turns a panic while scoring
// into an error, so one malformed snapshot cannot abort a whole ranking.
func ScoreChecked(a model.AssetSnapshot) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("score %s: panic: %v", a.Symbol, r)
		}
	}()
	if err := a.Validate(); err != nil {
		return Result{}, err
	}
	return Score(a), nil
}

// RankCandidates scores every asset, keeps those at or above threshold and
// orders them by descending score. Equal scores keep universe order. Assets
// that fail to score are reported to onError, if set, and skipped.
func RankCandidates(universe []model.AssetSnapshot, threshold int, onError func(a model.AssetSnapshot, err error)) []Candidate {
	out := make([]Candidate, 0, len(universe))
	for _, a := range universe {
		r, err := ScoreChecked(a)
		if err != nil {
			if onError != nil {
				onError(a, err)
			}
			continue
		}
		if r.Score >= threshold {
			out = append(out, Candidate{Asset: a, Result: r})
		}
	}
	SortCandidates(out)
	return out
}

// SortCandidates stable-sorts by descending score.
func SortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Result.Score > c[j].Result.Score
	})
}
