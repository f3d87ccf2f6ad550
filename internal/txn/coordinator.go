// Package txn orchestrates buys and sells as single all-or-nothing
// state transitions across the ledger and the position book.
//
// Every mutation of the session's money goes through Execute, so one
// mutex per session is the entire concurrency story: no lost updates
// to available/used and no half-applied transitions.
package txn

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/broker"
	"github.com/shubhamtaywade82/dhan-scalper/internal/journal"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/limits"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// Coordinator executes intents atomically against one session's
// ledger + book pair.
type Coordinator struct {
	sessionID string
	ledger    *ledger.Ledger
	book      *book.Book
	journal   journal.Store
	broker    broker.Broker
	idem      IdempotencyStore
	limiter   *limits.PositionLimiter // optional
	ttl       time.Duration
	now       func() time.Time

	// mu is the per-session critical section. The ledger is shared
	// across every position, so all mutations serialize against each
	// other. Nothing inside the section blocks on network I/O.
	mu chan struct{}
}

// New creates a coordinator. limiter may be nil to disable exposure
// checks.
func New(sessionID string, l *ledger.Ledger, b *book.Book, j journal.Store,
	br broker.Broker, idem IdempotencyStore, limiter *limits.PositionLimiter) *Coordinator {

	c := &Coordinator{
		sessionID: sessionID,
		ledger:    l,
		book:      b,
		journal:   j,
		broker:    br,
		idem:      idem,
		limiter:   limiter,
		ttl:       DefaultIdempotencyTTL,
		now:       time.Now,
		mu:        make(chan struct{}, 1),
	}
	c.mu <- struct{}{}
	return c
}

// SetClock overrides the timestamp clock. Tests only.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Coordinator) lock()   { <-c.mu }
func (c *Coordinator) unlock() { c.mu <- struct{}{} }

// Execute runs one buy/sell transition. Failures come back as typed
// results, never panics, and leave the ledger and book exactly as they
// were before the call.
func (c *Coordinator) Execute(ctx context.Context, intent model.Intent) model.Result {
	// Fast idempotency path: a replay returns the original result with
	// zero ledger/book access.
	if intent.IdempotencyKey != "" {
		if res, ok, err := c.idem.Get(ctx, intent.IdempotencyKey); err == nil && ok {
			return res
		}
	}

	// Validation rejects before any state is touched.
	if !intent.Price.IsPositive() {
		return model.Result{Status: model.StatusInvalidPrice, Error: "price missing or not positive"}
	}
	if intent.Quantity <= 0 {
		return model.Result{Status: model.StatusInvalidQuantity, Error: "quantity must be positive"}
	}
	if !intent.Key.Side.Valid() {
		return model.Result{Status: model.StatusInvalidQuantity, Error: "unknown side"}
	}

	if intent.Kind == model.KindEntry {
		if res, ok := c.checkLimits(intent); !ok {
			return res
		}
	}

	// Route the order before taking the lock. A routing failure leaves
	// no state behind, so a risk-loop exit simply re-fires on the next
	// tick. (For exits the fill quantity is provisional; the book's cap
	// inside the critical section is authoritative.)
	fill, err := c.broker.Execute(ctx, broker.Order{
		Segment:    intent.Key.Segment,
		SecurityID: intent.Key.SecurityID,
		Side:       intent.Key.Side,
		Kind:       intent.Kind,
		Quantity:   intent.Quantity,
		Price:      intent.Price,
	})
	if err != nil {
		slog.Warn("order routing failed",
			"key", intent.Key.String(), "kind", intent.Kind, "err", err)
		return model.Result{Status: model.StatusRoutingError, Error: err.Error()}
	}

	price := fill.Price
	if price.IsZero() {
		price = intent.Price
	}

	c.lock()
	defer c.unlock()

	// Second idempotency check inside the critical section: two
	// concurrent carriers of the same key can both miss the fast path.
	if intent.IdempotencyKey != "" {
		if res, ok, err := c.idem.Get(ctx, intent.IdempotencyKey); err == nil && ok {
			return res
		}
	}

	var res model.Result
	switch intent.Kind {
	case model.KindEntry:
		res = c.applyEntry(ctx, intent, fill.OrderID, price)
	case model.KindExit:
		res = c.applyExit(ctx, intent, fill.OrderID, price)
	default:
		return model.Result{Status: model.StatusInvalidQuantity, Error: "unknown intent kind"}
	}

	// Record the idempotency key before releasing the critical section
	// so a replay can never overlap with its original.
	if res.Success() && intent.IdempotencyKey != "" {
		if err := c.idem.Put(ctx, intent.IdempotencyKey, res, c.ttl); err != nil {
			slog.Error("idempotency record failed",
				"key", intent.IdempotencyKey, "err", err)
		}
	}
	return res
}

// applyEntry runs inside the critical section.
func (c *Coordinator) applyEntry(ctx context.Context, intent model.Intent, orderID string, price decimal.Decimal) model.Result {
	principal := price.Mul(decimal.NewFromInt(intent.Quantity))

	ledgerBefore := c.ledger.Snapshot()
	posBefore, hadPos := c.book.Get(intent.Key)

	if err := c.ledger.DebitForEntry(principal, intent.Fee); err != nil {
		return model.Result{Status: model.StatusInsufficientBalance, Error: err.Error()}
	}

	pos := c.book.AddFill(intent.Key, intent.Quantity, price, c.now())

	rec := &journal.TradeRecord{
		ID:         orderID,
		SessionID:  c.sessionID,
		Segment:    intent.Key.Segment,
		SecurityID: intent.Key.SecurityID,
		Side:       intent.Key.Side,
		Kind:       model.KindEntry,
		Quantity:   intent.Quantity,
		Price:      price,
		Fee:        intent.Fee,
		Timestamp:  c.now(),
	}
	if err := c.journal.RecordTrade(ctx, rec); err != nil {
		// Roll back both halves: no partial debit with a failed record.
		c.ledger.Restore(ledgerBefore)
		if hadPos {
			c.book.Restore(intent.Key, &posBefore)
		} else {
			c.book.Restore(intent.Key, nil)
		}
		slog.Error("journal write failed, entry rolled back",
			"key", intent.Key.String(), "err", err)
		return model.Result{Status: model.StatusStorageError, Error: err.Error()}
	}

	slog.Info("entry committed",
		"key", intent.Key.String(),
		"qty", intent.Quantity,
		"price", price.String(),
		"avg", pos.AvgEntryPrice.String(),
		"order_id", orderID,
	)

	return model.Result{
		Status:         model.StatusOK,
		OrderID:        orderID,
		FilledQuantity: intent.Quantity,
		AvgEntryPrice:  pos.AvgEntryPrice,
	}
}

// applyExit runs inside the critical section.
func (c *Coordinator) applyExit(ctx context.Context, intent model.Intent, orderID string, price decimal.Decimal) model.Result {
	ledgerBefore := c.ledger.Snapshot()
	posBefore, hadPos := c.book.Get(intent.Key)

	fill, err := c.book.PartialExit(intent.Key, intent.Quantity, price)
	if err != nil {
		return model.Result{Status: model.StatusNoPosition, Error: err.Error()}
	}

	exitedQty := decimal.NewFromInt(fill.ExitedQuantity)
	netProceeds := price.Mul(exitedQty).Sub(intent.Fee)
	releasedPrincipal := fill.AvgEntryPrice.Mul(exitedQty)

	c.ledger.CreditForExit(netProceeds, releasedPrincipal)
	c.ledger.AddRealizedPnL(fill.RealizedDelta)

	rec := &journal.TradeRecord{
		ID:            orderID,
		SessionID:     c.sessionID,
		Segment:       intent.Key.Segment,
		SecurityID:    intent.Key.SecurityID,
		Side:          intent.Key.Side,
		Kind:          model.KindExit,
		Quantity:      fill.ExitedQuantity,
		Price:         price,
		Fee:           intent.Fee,
		RealizedDelta: fill.RealizedDelta,
		Reason:        intent.Reason,
		Timestamp:     c.now(),
	}
	if err := c.journal.RecordTrade(ctx, rec); err != nil {
		c.ledger.Restore(ledgerBefore)
		if hadPos {
			c.book.Restore(intent.Key, &posBefore)
		} else {
			c.book.Restore(intent.Key, nil)
		}
		slog.Error("journal write failed, exit rolled back",
			"key", intent.Key.String(), "err", err)
		return model.Result{Status: model.StatusStorageError, Error: err.Error()}
	}

	slog.Info("exit committed",
		"key", intent.Key.String(),
		"qty", fill.ExitedQuantity,
		"price", price.String(),
		"realized", fill.RealizedDelta.String(),
		"reason", intent.Reason,
		"order_id", orderID,
	)

	return model.Result{
		Status:         model.StatusOK,
		OrderID:        orderID,
		FilledQuantity: fill.ExitedQuantity,
		AvgEntryPrice:  fill.AvgEntryPrice,
		RealizedDelta:  fill.RealizedDelta,
	}
}

// checkLimits applies exposure caps to an entry.
func (c *Coordinator) checkLimits(intent model.Intent) (model.Result, bool) {
	if c.limiter == nil {
		return model.Result{}, true
	}

	existing := make(map[string]decimal.Decimal)
	for _, p := range c.book.OpenPositions() {
		k := p.Key.Segment + ":" + p.Key.SecurityID
		notional := p.AvgEntryPrice.Mul(decimal.NewFromInt(p.NetQuantity))
		existing[k] = existing[k].Add(notional)
	}

	delta := intent.Price.Mul(decimal.NewFromInt(intent.Quantity))
	key := intent.Key.Segment + ":" + intent.Key.SecurityID
	if err := c.limiter.CheckEntry(key, delta, existing); err != nil {
		return model.Result{Status: model.StatusExposureLimit, Error: err.Error()}, false
	}
	return model.Result{}, true
}

// NewIdempotencyKey builds a caller-side idempotency key for manual
// submissions that did not bring their own.
func NewIdempotencyKey(prefix string) string {
	return prefix + "_" + uuid.New().String()
}
