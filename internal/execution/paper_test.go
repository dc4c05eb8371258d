package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"papertrader/internal/model"
	"papertrader/internal/portfolio"
	"papertrader/internal/store"
	"papertrader/internal/strategy"
)

func TestPaperExecutor_BuySell(t *testing.T) {
	l := portfolio.NewLedger(store.NewMemory(), nil, nil)
	ex := NewPaperExecutor(0, nil)

	_, err := l.Update(context.Background(), func(tx *portfolio.Tx) error {
		if _, err := ex.Execute(tx, strategy.Signal{Action: strategy.ActionBuy, Symbol: "AAPL", Qty: 10, Price: 150, Reason: "test"}); err != nil {
			return err
		}
		_, err := ex.Execute(tx, strategy.Signal{Action: strategy.ActionSell, Symbol: "AAPL", Qty: 4, Price: 160, Reason: "test"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	pf := l.Snapshot()
	if len(pf.Positions) != 1 || pf.Positions[0].Qty != 6 {
		t.Fatalf("positions = %+v", pf.Positions)
	}
	if ex.Filled() != 2 {
		t.Fatalf("filled = %d, want 2", ex.Filled())
	}
}

func TestPaperExecutor_Slippage(t *testing.T) {
	ex := NewPaperExecutor(50, nil) // 0.5%
	if got := ex.FillPrice(strategy.Signal{Action: strategy.ActionBuy, Price: 100}); got != 100.5 {
		t.Errorf("buy fill = %v, want 100.5", got)
	}
	if got := ex.FillPrice(strategy.Signal{Action: strategy.ActionSell, Price: 100}); got != 99.5 {
		t.Errorf("sell fill = %v, want 99.5", got)
	}
}

func TestPaperExecutor_ManualTradesSkipSlippage(t *testing.T) {
	l := portfolio.NewLedger(store.NewMemory(), nil, nil)
	ex := NewPaperExecutor(50, nil)
	sig := strategy.Signal{StrategyName: strategy.ManualStrategyName, Action: strategy.ActionBuy, Symbol: "AAPL", Qty: 10, Price: 150, Reason: "Manual Trade"}
	if got := ex.FillPrice(sig); got != 150 {
		t.Fatalf("manual fill = %v, want 150", got)
	}

	var rec model.TradeRecord
	_, err := l.Update(context.Background(), func(tx *portfolio.Tx) error {
		var err error
		rec, err = ex.Execute(tx, sig)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Price.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("recorded price = %s, want 150", rec.Price)
	}
	if !l.Snapshot().Cash.Equal(decimal.NewFromInt(100000 - 1500)) {
		t.Fatalf("cash = %s", l.Snapshot().Cash)
	}
}

func TestPaperExecutor_Rejects(t *testing.T) {
	l := portfolio.NewLedger(store.NewMemory(), nil, nil)
	ex := NewPaperExecutor(0, nil)
	var rejected int
	ex.OnReject = func(strategy.Signal, error) { rejected++ }

	l.Update(context.Background(), func(tx *portfolio.Tx) error {
		if _, err := ex.Execute(tx, strategy.Signal{Action: "HOLD", Symbol: "AAPL", Qty: 1, Price: 1}); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("expected ErrUnknownAction, got %v", err)
		}
		if _, err := ex.Execute(tx, strategy.Signal{Action: strategy.ActionSell, Symbol: "AAPL", Qty: 1, Price: 1}); !errors.Is(err, portfolio.ErrInsufficientHoldings) {
			t.Errorf("expected ErrInsufficientHoldings, got %v", err)
		}
		return nil
	})
	if rejected != 2 {
		t.Fatalf("rejected = %d, want 2", rejected)
	}
}
