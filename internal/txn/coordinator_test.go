package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/broker"
	"github.com/shubhamtaywade82/dhan-scalper/internal/journal"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/limits"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

var testKey = model.PositionKey{Segment: "NSE_FNO", SecurityID: "49081", Side: model.Long}

type fixture struct {
	ledger  *ledger.Ledger
	book    *book.Book
	journal journal.Store
	broker  *broker.Paper
	idem    *MemoryIdempotencyStore
	coord   *Coordinator
}

func newFixture(t *testing.T, starting decimal.Decimal, limiter *limits.PositionLimiter) *fixture {
	t.Helper()

	f := &fixture{
		ledger:  ledger.New(starting),
		book:    book.New(),
		journal: journal.NewMemoryStore(),
		broker:  broker.NewPaper(nil),
		idem:    NewMemoryIdempotencyStore(),
	}
	f.coord = New("sess-1", f.ledger, f.book, f.journal, f.broker, f.idem, limiter)
	return f
}

func entry(qty int64, price, fee decimal.Decimal) model.Intent {
	return model.Intent{Key: testKey, Kind: model.KindEntry, Quantity: qty, Price: price, Fee: fee}
}

func exit(qty int64, price, fee decimal.Decimal) model.Intent {
	return model.Intent{Key: testKey, Kind: model.KindExit, Quantity: qty, Price: price, Fee: fee, Reason: model.ReasonManual}
}

func TestExecute_EntryDebitsPrincipalAndFee(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	res := f.coord.Execute(context.Background(), entry(75, d(100), d(20)))
	if !res.Success() {
		t.Fatalf("entry failed: %s %s", res.Status, res.Error)
	}
	if res.FilledQuantity != 75 {
		t.Errorf("filled = %d, want 75", res.FilledQuantity)
	}
	if !res.AvgEntryPrice.Equal(d(100)) {
		t.Errorf("avg = %s, want 100", res.AvgEntryPrice)
	}

	snap := f.ledger.Snapshot()
	if !snap.Available.Equal(d(92_480)) {
		t.Errorf("available = %s, want 92480", snap.Available)
	}
	if !snap.Used.Equal(d(7_520)) {
		t.Errorf("used = %s, want 7520", snap.Used)
	}
	if !snap.Total.Equal(d(100_000)) {
		t.Errorf("total = %s, want 100000", snap.Total)
	}

	pos, ok := f.book.Get(testKey)
	if !ok {
		t.Fatal("position not in book")
	}
	if pos.NetQuantity != 75 {
		t.Errorf("net quantity = %d, want 75", pos.NetQuantity)
	}

	trades, _ := f.journal.TradesBySession(context.Background(), "sess-1")
	if len(trades) != 1 {
		t.Fatalf("journal has %d trades, want 1", len(trades))
	}
	if trades[0].Kind != model.KindEntry {
		t.Errorf("recorded kind = %s, want ENTRY", trades[0].Kind)
	}
}

func TestExecute_FullExitReleasesPrincipalAndBooksPnL(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	if res := f.coord.Execute(context.Background(), entry(75, d(100), d(20))); !res.Success() {
		t.Fatalf("entry failed: %s", res.Status)
	}
	res := f.coord.Execute(context.Background(), exit(75, d(120), d(20)))
	if !res.Success() {
		t.Fatalf("exit failed: %s %s", res.Status, res.Error)
	}
	if !res.RealizedDelta.Equal(d(1_500)) {
		t.Errorf("realized = %s, want 1500", res.RealizedDelta)
	}

	snap := f.ledger.Snapshot()
	if !snap.Available.Equal(d(101_460)) {
		t.Errorf("available = %s, want 101460", snap.Available)
	}
	// The entry fee stays parked in used; only principal is released.
	if !snap.Used.Equal(d(20)) {
		t.Errorf("used = %s, want 20", snap.Used)
	}
	if !snap.RealizedPnL.Equal(d(1_500)) {
		t.Errorf("realized pnl = %s, want 1500", snap.RealizedPnL)
	}

	if f.book.Len() != 0 {
		t.Errorf("book still holds %d positions after full exit", f.book.Len())
	}
}

func TestExecute_ConcurrentEntriesNeverLoseADebit(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.coord.Execute(context.Background(), entry(50, d(100), d(20)))
			if !res.Success() {
				t.Errorf("concurrent entry failed: %s", res.Status)
			}
		}()
	}
	wg.Wait()

	snap := f.ledger.Snapshot()
	if !snap.Used.Equal(d(10_040)) {
		t.Errorf("used = %s, want 10040", snap.Used)
	}
	if !snap.Available.Equal(d(89_960)) {
		t.Errorf("available = %s, want 89960", snap.Available)
	}

	pos, _ := f.book.Get(testKey)
	if pos.NetQuantity != 100 {
		t.Errorf("net quantity = %d, want 100", pos.NetQuantity)
	}
}

func TestExecute_ExitCappedToHeldQuantity(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	f.coord.Execute(context.Background(), entry(75, d(100), d(0)))

	res := f.coord.Execute(context.Background(), exit(100, d(110), d(0)))
	if !res.Success() {
		t.Fatalf("capped exit failed: %s", res.Status)
	}
	if res.FilledQuantity != 75 {
		t.Errorf("filled = %d, want capped 75", res.FilledQuantity)
	}
	if f.book.Len() != 0 {
		t.Error("position should be fully closed")
	}
}

func TestExecute_ConcurrentOversizedExitsNeverOversell(t *testing.T) {
	f := newFixture(t, d(100_000), nil)
	f.coord.Execute(context.Background(), entry(75, d(100), d(0)))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		totalOut int64
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.coord.Execute(context.Background(), exit(75, d(110), d(0)))
			if res.Success() {
				mu.Lock()
				totalOut += res.FilledQuantity
				mu.Unlock()
			} else if res.Status != model.StatusNoPosition {
				t.Errorf("unexpected status %s", res.Status)
			}
		}()
	}
	wg.Wait()

	if totalOut != 75 {
		t.Errorf("total exited = %d, want exactly 75", totalOut)
	}
}

func TestExecute_IdempotentReplayReturnsOriginalResult(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	intent := entry(75, d(100), d(20))
	intent.IdempotencyKey = "order-abc"

	first := f.coord.Execute(context.Background(), intent)
	if !first.Success() {
		t.Fatalf("first execute failed: %s", first.Status)
	}

	second := f.coord.Execute(context.Background(), intent)
	if second != first {
		t.Errorf("replay result differs:\n first=%+v\nsecond=%+v", first, second)
	}

	// The replay must not touch the ledger, the book, or the journal.
	snap := f.ledger.Snapshot()
	if !snap.Used.Equal(d(7_520)) {
		t.Errorf("used after replay = %s, want 7520", snap.Used)
	}
	pos, _ := f.book.Get(testKey)
	if pos.NetQuantity != 75 {
		t.Errorf("net quantity after replay = %d, want 75", pos.NetQuantity)
	}
	trades, _ := f.journal.TradesBySession(context.Background(), "sess-1")
	if len(trades) != 1 {
		t.Errorf("journal has %d trades after replay, want 1", len(trades))
	}
	// A warm store short-circuits before the broker, so the replay
	// routes nothing.
	if n := len(f.broker.Fills()); n != 1 {
		t.Errorf("broker saw %d orders, want 1", n)
	}
}

func TestExecute_RoutingFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, d(100_000), nil)
	f.broker.FailWith(errors.New("exchange session down"))

	res := f.coord.Execute(context.Background(), entry(75, d(100), d(20)))
	if res.Status != model.StatusRoutingError {
		t.Fatalf("status = %s, want ROUTING_ERROR", res.Status)
	}

	snap := f.ledger.Snapshot()
	if !snap.Available.Equal(d(100_000)) || !snap.Used.IsZero() {
		t.Errorf("ledger mutated on routing failure: %+v", snap)
	}
	if f.book.Len() != 0 {
		t.Error("book mutated on routing failure")
	}
}

type failingJournal struct {
	journal.Store
	failTrades bool
}

func (j *failingJournal) RecordTrade(ctx context.Context, rec *journal.TradeRecord) error {
	if j.failTrades {
		return errors.New("connection refused")
	}
	return j.Store.RecordTrade(ctx, rec)
}

func TestExecute_StorageFailureRollsBackEntry(t *testing.T) {
	f := newFixture(t, d(100_000), nil)
	fj := &failingJournal{Store: f.journal, failTrades: true}
	f.coord = New("sess-1", f.ledger, f.book, fj, f.broker, f.idem, nil)

	res := f.coord.Execute(context.Background(), entry(75, d(100), d(20)))
	if res.Status != model.StatusStorageError {
		t.Fatalf("status = %s, want STORAGE_ERROR", res.Status)
	}

	snap := f.ledger.Snapshot()
	if !snap.Available.Equal(d(100_000)) || !snap.Used.IsZero() {
		t.Errorf("ledger not rolled back: %+v", snap)
	}
	if f.book.Len() != 0 {
		t.Error("book not rolled back")
	}
}

func TestExecute_StorageFailureRollsBackExit(t *testing.T) {
	f := newFixture(t, d(100_000), nil)
	fj := &failingJournal{Store: f.journal}
	f.coord = New("sess-1", f.ledger, f.book, fj, f.broker, f.idem, nil)

	if res := f.coord.Execute(context.Background(), entry(75, d(100), d(20))); !res.Success() {
		t.Fatalf("entry failed: %s", res.Status)
	}
	before := f.ledger.Snapshot()
	fj.failTrades = true

	res := f.coord.Execute(context.Background(), exit(75, d(120), d(20)))
	if res.Status != model.StatusStorageError {
		t.Fatalf("status = %s, want STORAGE_ERROR", res.Status)
	}

	after := f.ledger.Snapshot()
	if !after.Available.Equal(before.Available) || !after.Used.Equal(before.Used) || !after.RealizedPnL.Equal(before.RealizedPnL) {
		t.Errorf("ledger not rolled back:\nbefore=%+v\n after=%+v", before, after)
	}
	pos, ok := f.book.Get(testKey)
	if !ok || pos.NetQuantity != 75 {
		t.Errorf("position not restored: ok=%v pos=%+v", ok, pos)
	}
}

func TestExecute_ValidationRejections(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	cases := []struct {
		name   string
		intent model.Intent
		want   model.Status
	}{
		{"zero price", entry(10, decimal.Zero, d(0)), model.StatusInvalidPrice},
		{"negative price", entry(10, d(-5), d(0)), model.StatusInvalidPrice},
		{"zero quantity", entry(0, d(100), d(0)), model.StatusInvalidQuantity},
		{"negative quantity", entry(-5, d(100), d(0)), model.StatusInvalidQuantity},
		{"exit without position", exit(10, d(100), d(0)), model.StatusNoPosition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := f.coord.Execute(context.Background(), tc.intent)
			if res.Status != tc.want {
				t.Errorf("status = %s, want %s", res.Status, tc.want)
			}
		})
	}

	snap := f.ledger.Snapshot()
	if !snap.Available.Equal(d(100_000)) {
		t.Errorf("rejections mutated the ledger: %+v", snap)
	}
}

func TestExecute_InsufficientBalance(t *testing.T) {
	f := newFixture(t, d(1_000), nil)

	res := f.coord.Execute(context.Background(), entry(75, d(100), d(20)))
	if res.Status != model.StatusInsufficientBalance {
		t.Fatalf("status = %s, want INSUFFICIENT_BALANCE", res.Status)
	}
	snap := f.ledger.Snapshot()
	if !snap.Available.Equal(d(1_000)) || !snap.Used.IsZero() {
		t.Errorf("ledger mutated on rejected entry: %+v", snap)
	}
}

func TestExecute_ExposureLimitBlocksEntry(t *testing.T) {
	limiter := limits.NewPositionLimiter(d(8_000), d(20_000))
	f := newFixture(t, d(100_000), limiter)

	if res := f.coord.Execute(context.Background(), entry(75, d(100), d(0))); !res.Success() {
		t.Fatalf("first entry failed: %s", res.Status)
	}

	// 7,500 held + 2,500 more breaches the 8,000 per-instrument cap.
	res := f.coord.Execute(context.Background(), entry(25, d(100), d(0)))
	if res.Status != model.StatusExposureLimit {
		t.Fatalf("status = %s, want EXPOSURE_LIMIT", res.Status)
	}

	// Exits are never exposure-limited.
	res = f.coord.Execute(context.Background(), exit(75, d(100), d(0)))
	if !res.Success() {
		t.Errorf("exit blocked by limiter: %s", res.Status)
	}
}

func TestExecute_WeightedAverageAcrossAdds(t *testing.T) {
	f := newFixture(t, d(100_000), nil)

	f.coord.Execute(context.Background(), entry(50, d(100), d(0)))
	res := f.coord.Execute(context.Background(), entry(50, d(110), d(0)))
	if !res.Success() {
		t.Fatalf("second entry failed: %s", res.Status)
	}
	if !res.AvgEntryPrice.Equal(d(105)) {
		t.Errorf("avg = %s, want 105", res.AvgEntryPrice)
	}
}

func TestExecute_DeterministicTimestamps(t *testing.T) {
	f := newFixture(t, d(100_000), nil)
	fixed := time.Date(2026, 2, 10, 10, 15, 0, 0, time.UTC)
	f.coord.SetClock(func() time.Time { return fixed })

	f.coord.Execute(context.Background(), entry(10, d(100), d(0)))

	trades, _ := f.journal.TradesBySession(context.Background(), "sess-1")
	if len(trades) != 1 || !trades[0].Timestamp.Equal(fixed) {
		t.Errorf("trade timestamp = %v, want %v", trades[0].Timestamp, fixed)
	}
	pos, _ := f.book.Get(testKey)
	if !pos.EntryTimestamp.Equal(fixed) {
		t.Errorf("entry timestamp = %v, want %v", pos.EntryTimestamp, fixed)
	}
}
