package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func mustPosition(t *testing.T, in PositionInput) *Position {
	t.Helper()
	p, err := NewPosition("p1", in, t0)
	if err != nil {
		t.Fatalf("NewPosition failed: %v", err)
	}
	return p
}

func TestNewPositionNormalizes(t *testing.T) {
	p := mustPosition(t, PositionInput{
		Symbol:   "  aapl ",
		Name:     " Apple ",
		Quantity: 10,
		BuyPrice: 100,
		Tags:     "tech, growth,,tech ",
	})

	if p.Symbol != "AAPL" {
		t.Errorf("expected symbol AAPL, got %q", p.Symbol)
	}
	if p.CurrentPrice != 100 {
		t.Errorf("expected current price to default to buy price, got %v", p.CurrentPrice)
	}
	if !p.IsActive || p.SellDate != nil || p.SellPrice != 0 {
		t.Errorf("new position must be active with no sell data: %+v", p)
	}
	if p.Tags != "tech,growth" {
		t.Errorf("expected normalized tags, got %q", p.Tags)
	}
	if !p.DateAdded.Equal(t0) {
		t.Errorf("expected date added %v, got %v", t0, p.DateAdded)
	}
}

func TestNewPositionRejectsInvalidNumbers(t *testing.T) {
	cases := []struct {
		name string
		in   PositionInput
	}{
		{"empty symbol", PositionInput{Symbol: " ", Quantity: 1, BuyPrice: 1}},
		{"zero quantity", PositionInput{Symbol: "A", Quantity: 0, BuyPrice: 1}},
		{"negative quantity", PositionInput{Symbol: "A", Quantity: -1, BuyPrice: 1}},
		{"zero buy price", PositionInput{Symbol: "A", Quantity: 1, BuyPrice: 0}},
		{"nan buy price", PositionInput{Symbol: "A", Quantity: 1, BuyPrice: math.NaN()}},
		{"negative stop", PositionInput{Symbol: "A", Quantity: 1, BuyPrice: 1, StopLoss: -2}},
		{"negative current", PositionInput{Symbol: "A", Quantity: 1, BuyPrice: 1, CurrentPrice: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPosition("x", tc.in, t0)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCurrentPriceFloor(t *testing.T) {
	p := mustPosition(t, PositionInput{Symbol: "A", Quantity: 1, BuyPrice: 5, CurrentPrice: 0.001})
	if p.CurrentPrice != MinPrice {
		t.Errorf("expected floor %v, got %v", MinPrice, p.CurrentPrice)
	}

	if !p.UpdateCurrentPrice(0) {
		t.Fatal("update on active position should apply")
	}
	if p.CurrentPrice != MinPrice {
		t.Errorf("expected floor after update, got %v", p.CurrentPrice)
	}
}

func TestCloseRejectsSecondCall(t *testing.T) {
	p := mustPosition(t, PositionInput{Symbol: "B", Quantity: 5, BuyPrice: 50})

	closedAt := t0.Add(time.Hour)
	if err := p.Close(40, closedAt); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if p.IsActive || p.SellDate == nil || p.SellPrice != 40 {
		t.Fatalf("close must set all lifecycle fields: %+v", p)
	}

	err := p.Close(99, closedAt.Add(time.Hour))
	if !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if p.SellPrice != 40 || !p.SellDate.Equal(closedAt) {
		t.Errorf("second close must not modify the position: %+v", p)
	}

	if p.UpdateCurrentPrice(10) {
		t.Error("price update on closed position must be a no-op")
	}
}

func TestCloseRejectsNonPositiveSellPrice(t *testing.T) {
	p := mustPosition(t, PositionInput{Symbol: "B", Quantity: 5, BuyPrice: 50})
	if err := p.Close(0, t0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !p.IsActive {
		t.Error("rejected close must leave the position active")
	}
}

func TestDerivedMetrics(t *testing.T) {
	a := mustPosition(t, PositionInput{
		Symbol: "A", Quantity: 10, BuyPrice: 100, CurrentPrice: 110,
		StopLoss: 90, PriceTarget: 130,
	})

	if got := a.TotalInvestment(); got != 1000 {
		t.Errorf("total investment: got %v", got)
	}
	if got := a.CurrentValue(); got != 1100 {
		t.Errorf("current value: got %v", got)
	}
	if got := a.UnrealizedPnL(); got != 100 {
		t.Errorf("unrealized pnl: got %v", got)
	}
	if got := a.UnrealizedPnLPercent(); got != 10 {
		t.Errorf("unrealized pnl %%: got %v", got)
	}
	if got := a.RealizedPnL(); got != 0 {
		t.Errorf("active position must not have realized pnl, got %v", got)
	}
	if got := a.RiskAmount(); got != 100 {
		t.Errorf("risk amount: got %v", got)
	}
	if got := a.PotentialReward(); got != 300 {
		t.Errorf("potential reward: got %v", got)
	}
	if got := a.RiskRewardRatio(); got != 3 {
		t.Errorf("risk/reward: got %v", got)
	}
	progress, ok := a.ProgressToTarget()
	if !ok || math.Abs(progress-100.0/3) > 1e-9 {
		t.Errorf("progress to target: got %v %v", progress, ok)
	}

	b := mustPosition(t, PositionInput{Symbol: "B", Quantity: 5, BuyPrice: 50})
	if err := b.Close(40, t0); err != nil {
		t.Fatal(err)
	}
	if got := b.RealizedPnL(); got != -50 {
		t.Errorf("realized pnl: got %v", got)
	}
	if got := b.UnrealizedPnL(); got != 0 {
		t.Errorf("closed position must not have unrealized pnl, got %v", got)
	}
	if got := b.RealizedPnLPercent(); got != -20 {
		t.Errorf("realized pnl %%: got %v", got)
	}
	if got := b.RiskRewardRatio(); got != 0 {
		t.Errorf("zero risk must give ratio 0, got %v", got)
	}
	if _, ok := b.ProgressToTarget(); ok {
		t.Error("progress must be undefined when target <= buy price")
	}
}

func TestApplyEdit(t *testing.T) {
	p := mustPosition(t, PositionInput{Symbol: "A", Quantity: 1, BuyPrice: 10})

	name := "Acme"
	qty := 3.0
	if err := p.Apply(PositionEdit{Name: &name, Quantity: &qty}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if p.Name != "Acme" || p.Quantity != 3 {
		t.Errorf("edit not applied: %+v", p)
	}

	bad := -1.0
	if err := p.Apply(PositionEdit{BuyPrice: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	if err := p.Close(12, t0); err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(PositionEdit{Quantity: &qty}); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}
