package journal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

func TestMemoryStore_TradesBySession(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	for i, session := range []string{"s1", "s1", "s2"} {
		err := ms.RecordTrade(ctx, &TradeRecord{
			ID:        string(rune('a' + i)),
			SessionID: session,
			Segment:   "NSE_FNO",
			Side:      model.Long,
			Kind:      model.KindEntry,
			Quantity:  10,
			Price:     decimal.NewFromInt(100),
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	trades, err := ms.TradesBySession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Errorf("expected 2 trades for s1, got %d", len(trades))
	}
}

func TestMemoryStore_EquityCurve(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := ms.RecordEquity(ctx, &EquityPoint{
			SessionID:   "s1",
			TotalEquity: decimal.NewFromInt(int64(100000 + i)),
			Timestamp:   time.Now(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	curve, err := ms.EquityCurve(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(curve) != 3 {
		t.Fatalf("expected 3 points, got %d", len(curve))
	}
	if !curve[2].TotalEquity.Equal(decimal.NewFromInt(100002)) {
		t.Errorf("curve order wrong: %s", curve[2].TotalEquity)
	}
}
