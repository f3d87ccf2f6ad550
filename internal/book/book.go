// Package book maintains the set of open positions for one session,
// keyed by (segment, security id, side).
//
// Fills and exits go through the transaction coordinator; price
// refreshes come straight from the market-data path and deliberately do
// not take the transaction lock — they touch only one position's mark.
package book

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// ErrNoPosition is returned when an exit references a key that is not
// in the book. Late price ticks for unknown keys are NOT errors — they
// are dropped silently.
var ErrNoPosition = errors.New("book: no open position for key")

// ExitFill reports the authoritative outcome of a partial exit.
type ExitFill struct {
	ExitedQuantity    int64
	RemainingQuantity int64
	AvgEntryPrice     decimal.Decimal
	RealizedDelta     decimal.Decimal
}

// Book is the open-position set. Iteration order is insertion order —
// irrelevant to correctness, stable for display.
type Book struct {
	mu        sync.RWMutex
	positions map[model.PositionKey]*model.Position
	order     []model.PositionKey
}

// New creates an empty book.
func New() *Book {
	return &Book{
		positions: make(map[model.PositionKey]*model.Position),
	}
}

// AddFill creates a position at key or additively merges into an
// existing one, recomputing the quantity-weighted average entry price:
//
//	newAvg = (oldAvg*oldQty + fillPrice*fillQty) / (oldQty + fillQty)
//
// EntryTimestamp is set only when the key is new — adds do not reset
// the clock the time-stop rule runs against.
func (b *Book) AddFill(key model.PositionKey, qty int64, price decimal.Decimal, at time.Time) model.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[key]
	if !ok {
		p = &model.Position{
			Key:            key,
			NetQuantity:    qty,
			AvgEntryPrice:  price,
			CurrentPrice:   price,
			PeakPrice:      price,
			EntryTimestamp: at,
		}
		b.positions[key] = p
		b.order = append(b.order, key)
		return *p
	}

	oldQty := decimal.NewFromInt(p.NetQuantity)
	fillQty := decimal.NewFromInt(qty)
	newQty := oldQty.Add(fillQty)

	weighted := p.AvgEntryPrice.Mul(oldQty).Add(price.Mul(fillQty))
	p.AvgEntryPrice = weighted.Div(newQty)
	p.NetQuantity += qty
	p.CurrentPrice = price
	p.PeakPrice = favorable(key.Side, p.PeakPrice, price)
	return *p
}

// PartialExit reduces the position at key by min(qty, netQuantity) —
// requests beyond the held size are capped, not rejected — and computes
// the realized P&L of the exited slice. The key is deleted when the
// remaining quantity reaches zero.
func (b *Book) PartialExit(key model.PositionKey, qty int64, price decimal.Decimal) (ExitFill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[key]
	if !ok {
		return ExitFill{}, ErrNoPosition
	}

	exited := qty
	if exited > p.NetQuantity {
		exited = p.NetQuantity
	}

	diff := price.Sub(p.AvgEntryPrice)
	realized := diff.Mul(decimal.NewFromInt(exited))
	if key.Side == model.Short {
		realized = realized.Neg()
	}

	fill := ExitFill{
		ExitedQuantity: exited,
		AvgEntryPrice:  p.AvgEntryPrice,
		RealizedDelta:  realized,
	}

	p.NetQuantity -= exited
	p.CurrentPrice = price
	fill.RemainingQuantity = p.NetQuantity

	if p.NetQuantity == 0 {
		b.remove(key)
	}
	return fill, nil
}

// RefreshPrice updates a position's mark and advances its peak when the
// new price is more favorable. A tick for a key that is no longer open
// (or never was) is silently dropped — closed positions routinely
// receive a few trailing ticks.
func (b *Book) RefreshPrice(key model.PositionKey, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.positions[key]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.PeakPrice = favorable(key.Side, p.PeakPrice, price)
}

// Get returns a copy of the position at key.
func (b *Book) Get(key model.PositionKey) (model.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.positions[key]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// OpenPositions returns point-in-time copies of every open position in
// insertion order. Callers iterate the snapshot, never the live map.
func (b *Book) OpenPositions() []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Position, 0, len(b.order))
	for _, key := range b.order {
		if p, ok := b.positions[key]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Restore reinstates (or overwrites) the position at key exactly as
// captured, or deletes it when pos is nil. Rollback support for the
// transaction coordinator.
func (b *Book) Restore(key model.PositionKey, pos *model.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pos == nil {
		b.remove(key)
		return
	}
	copy := *pos
	if _, ok := b.positions[key]; !ok {
		b.order = append(b.order, key)
	}
	b.positions[key] = &copy
}

// remove deletes key from the map and the insertion-order slice.
// Caller holds the write lock.
func (b *Book) remove(key model.PositionKey) {
	if _, ok := b.positions[key]; !ok {
		return
	}
	delete(b.positions, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// favorable returns the more favorable of two prices for the given
// side: higher for LONG, lower for SHORT.
func favorable(side model.Side, a, bp decimal.Decimal) decimal.Decimal {
	if side == model.Short {
		if bp.LessThan(a) {
			return bp
		}
		return a
	}
	if bp.GreaterThan(a) {
		return bp
	}
	return a
}
