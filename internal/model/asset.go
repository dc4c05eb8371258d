package model

import (
	"fmt"
	"time"
)

// AssetSnapshot is the latest known state of one tradable asset.
// The series are parallel, chronological ascending, and Closes[last] == Price.
type AssetSnapshot struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Market    string    `json:"market"` // us, pl or crypto
	Price     float64   `json:"price"`
	Change    float64   `json:"change"` // percent
	Opens     []float64 `json:"opens"`
	Highs     []float64 `json:"highs"`
	Lows      []float64 `json:"lows"`
	Closes    []float64 `json:"closes"`
	Volumes   []float64 `json:"volumes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAssetSnapshot builds a snapshot from chronological bars. Price is taken
// from the last close so the snapshot is consistent by construction.
func NewAssetSnapshot(symbol, name string, change float64, bars []Candle) AssetSnapshot {
	a := AssetSnapshot{
		Symbol:  symbol,
		Name:    name,
		Change:  change,
		Opens:   make([]float64, len(bars)),
		Highs:   make([]float64, len(bars)),
		Lows:    make([]float64, len(bars)),
		Closes:  make([]float64, len(bars)),
		Volumes: make([]float64, len(bars)),
	}
	for i, b := range bars {
		a.Opens[i] = b.Open
		a.Highs[i] = b.High
		a.Lows[i] = b.Low
		a.Closes[i] = b.Close
		a.Volumes[i] = b.Volume
	}
	if n := len(bars); n > 0 {
		a.Price = bars[n-1].Close
		a.UpdatedAt = bars[n-1].TS
	}
	return a
}

// Len returns the number of bars in the snapshot.
func (a *AssetSnapshot) Len() int { return len(a.Closes) }

// Validate checks the parallel-series invariants.
func (a *AssetSnapshot) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("asset: empty symbol")
	}
	n := len(a.Closes)
	if len(a.Opens) != n || len(a.Highs) != n || len(a.Lows) != n || len(a.Volumes) != n {
		return fmt.Errorf("asset %s: series length mismatch", a.Symbol)
	}
	if n > 0 && a.Closes[n-1] != a.Price {
		return fmt.Errorf("asset %s: last close %.4f != price %.4f", a.Symbol, a.Closes[n-1], a.Price)
	}
	return nil
}

// Clone returns a deep copy so the caller can hand it to another goroutine.
func (a AssetSnapshot) Clone() AssetSnapshot {
	a.Opens = append([]float64(nil), a.Opens...)
	a.Highs = append([]float64(nil), a.Highs...)
	a.Lows = append([]float64(nil), a.Lows...)
	a.Closes = append([]float64(nil), a.Closes...)
	a.Volumes = append([]float64(nil), a.Volumes...)
	return a
}
