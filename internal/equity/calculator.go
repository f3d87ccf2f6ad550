// Package equity derives live equity from the ledger and the open
// position set: spendable balance plus mark-to-market P&L.
package equity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// ErrPositionNotFound is returned by RefreshAndRecalculate when the key
// has no open position.
var ErrPositionNotFound = errors.New("equity: position not found")

// PriceLookup resolves the last traded price of an instrument. Injected
// so tests can substitute deterministic price sources; the calculator
// only falls back to it when a position's cached mark is missing.
type PriceLookup interface {
	LastPrice(segment, securityID string) (decimal.Decimal, bool)
}

// Calculator combines the ledger and the position book into equity
// snapshots.
type Calculator struct {
	ledger *ledger.Ledger
	book   *book.Book
	prices PriceLookup // optional
	now    func() time.Time
}

// New creates a calculator. prices may be nil; positions then value at
// their cached CurrentPrice only.
func New(l *ledger.Ledger, b *book.Book, prices PriceLookup) *Calculator {
	return &Calculator{
		ledger: l,
		book:   b,
		prices: prices,
		now:    time.Now,
	}
}

// SetClock overrides the snapshot clock. Tests only.
func (c *Calculator) SetClock(now func() time.Time) {
	c.now = now
}

// Calculate sums unrealized P&L across a point-in-time copy of the open
// positions and combines it with the ledger's available balance.
// Positions with zero quantity never appear — the book prunes them.
func (c *Calculator) Calculate() model.EquitySnapshot {
	ls := c.ledger.Snapshot()

	unrealized := decimal.Zero
	for _, p := range c.book.OpenPositions() {
		mark := p.CurrentPrice
		if mark.IsZero() && c.prices != nil {
			if px, ok := c.prices.LastPrice(p.Key.Segment, p.Key.SecurityID); ok {
				mark = px
			}
		}
		diff := mark.Sub(p.AvgEntryPrice)
		pnl := diff.Mul(decimal.NewFromInt(p.NetQuantity))
		if p.Key.Side == model.Short {
			pnl = pnl.Neg()
		}
		unrealized = unrealized.Add(pnl)
	}

	return model.EquitySnapshot{
		Balance:       ls.Available,
		UnrealizedPnL: unrealized,
		TotalEquity:   ls.Available.Add(unrealized),
		At:            c.now(),
	}
}

// RefreshAndRecalculate pushes a fresh mark for one position and
// returns the resulting snapshot. Returns ErrPositionNotFound — not a
// panic — when the key is absent.
func (c *Calculator) RefreshAndRecalculate(key model.PositionKey, price decimal.Decimal) (model.EquitySnapshot, error) {
	if _, ok := c.book.Get(key); !ok {
		return model.EquitySnapshot{}, ErrPositionNotFound
	}
	c.book.RefreshPrice(key, price)
	return c.Calculate(), nil
}
