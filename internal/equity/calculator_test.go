package equity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func key(id string) model.PositionKey {
	return model.PositionKey{Segment: "NSE_FNO", SecurityID: id, Side: model.Long}
}

func TestCalculate_ScenarioA(t *testing.T) {
	// 100,000 balance; buy 75 @ 100 fee 20; mark moves to 120.
	l := ledger.New(d(100000))
	b := book.New()
	calc := New(l, b, nil)

	if err := l.DebitForEntry(d(7500), d(20)); err != nil {
		t.Fatal(err)
	}
	b.AddFill(key("49081"), 75, d(100), time.Now())
	b.RefreshPrice(key("49081"), d(120))

	snap := calc.Calculate()
	if !snap.Balance.Equal(d(92480)) {
		t.Errorf("expected balance=92480, got %s", snap.Balance)
	}
	if !snap.UnrealizedPnL.Equal(d(1500)) {
		t.Errorf("expected unrealized=1500, got %s", snap.UnrealizedPnL)
	}
	if !snap.TotalEquity.Equal(d(93980)) {
		t.Errorf("expected totalEquity=93980, got %s", snap.TotalEquity)
	}
}

func TestCalculate_MixedSides(t *testing.T) {
	l := ledger.New(d(50000))
	b := book.New()
	calc := New(l, b, nil)

	long := key("1")
	short := model.PositionKey{Segment: "NSE_FNO", SecurityID: "2", Side: model.Short}

	b.AddFill(long, 10, d(100), time.Now())
	b.AddFill(short, 10, d(100), time.Now())
	b.RefreshPrice(long, d(110))  // +100
	b.RefreshPrice(short, d(110)) // -100

	snap := calc.Calculate()
	if !snap.UnrealizedPnL.IsZero() {
		t.Errorf("long and short should cancel, got %s", snap.UnrealizedPnL)
	}
}

func TestCalculate_EmptyBook(t *testing.T) {
	l := ledger.New(d(12345))
	calc := New(l, book.New(), nil)

	snap := calc.Calculate()
	if !snap.UnrealizedPnL.IsZero() {
		t.Errorf("expected zero unrealized, got %s", snap.UnrealizedPnL)
	}
	if !snap.TotalEquity.Equal(d(12345)) {
		t.Errorf("expected equity=12345, got %s", snap.TotalEquity)
	}
}

func TestRefreshAndRecalculate(t *testing.T) {
	l := ledger.New(d(10000))
	b := book.New()
	calc := New(l, b, nil)

	b.AddFill(key("49081"), 50, d(100), time.Now())

	snap, err := calc.RefreshAndRecalculate(key("49081"), d(104))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.UnrealizedPnL.Equal(d(200)) {
		t.Errorf("expected unrealized=200, got %s", snap.UnrealizedPnL)
	}

	p, _ := b.Get(key("49081"))
	if !p.CurrentPrice.Equal(d(104)) {
		t.Errorf("refresh did not stick: %s", p.CurrentPrice)
	}
}

func TestRefreshAndRecalculate_UnknownKey(t *testing.T) {
	calc := New(ledger.New(d(1000)), book.New(), nil)

	_, err := calc.RefreshAndRecalculate(key("404"), d(100))
	if err != ErrPositionNotFound {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}
