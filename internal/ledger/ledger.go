// Package ledger maintains the authoritative cash record for one
// trading session: spendable balance, cash committed to open positions,
// and cumulative realized P&L.
//
// The ledger is mutated only through its primitives, and only the
// transaction coordinator calls the mutating ones. All monetary values
// use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
	"github.com/shubhamtaywade82/dhan-scalper/internal/money"
)

// ErrInsufficientBalance is returned when an entry debit exceeds the
// available balance. The ledger is left unchanged.
var ErrInsufficientBalance = errors.New("ledger: insufficient available balance")

// Ledger holds the session's cash state.
//
// Invariants, re-established after every operation:
//   - used >= 0 (clamped, never negative)
//   - total = available + used (realized P&L tracked separately to
//     avoid double counting cash already returned via exits)
type Ledger struct {
	mu          sync.Mutex
	available   decimal.Decimal
	used        decimal.Decimal
	realizedPnL decimal.Decimal
}

// New creates a session ledger with the configured starting balance.
func New(startingBalance decimal.Decimal) *Ledger {
	return &Ledger{available: startingBalance}
}

// DebitForEntry commits principal+fee of available cash to an opening
// fill. Fails with ErrInsufficientBalance — leaving state untouched —
// when the available balance cannot cover it.
func (l *Ledger) DebitForEntry(principal, fee decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	required := principal.Add(fee)
	if l.available.LessThan(required) {
		return ErrInsufficientBalance
	}

	l.available = l.available.Sub(required)
	l.used = l.used.Add(required)
	return nil
}

// CreditForExit books the cash effect of an exit: net proceeds flow
// back into available, the released principal leaves used. It never
// fails — exits must always complete their bookkeeping — and used is
// clamped at zero if rounding (or an entry fee still parked in used)
// would dip it negative.
func (l *Ledger) CreditForExit(netProceeds, releasedPrincipal decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.available = l.available.Add(netProceeds)
	l.used = money.ClampFloor(l.used.Sub(releasedPrincipal), decimal.Zero)
}

// AddRealizedPnL adjusts cumulative realized P&L. Bookkeeping only:
// the cash effect was already applied via CreditForExit.
func (l *Ledger) AddRealizedPnL(delta decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.realizedPnL = l.realizedPnL.Add(delta)
}

// Snapshot returns an internally consistent view of the ledger — no
// caller ever observes a half-applied update.
func (l *Ledger) Snapshot() model.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return model.LedgerSnapshot{
		Available:   l.available,
		Used:        l.used,
		Total:       l.available.Add(l.used),
		RealizedPnL: l.realizedPnL,
	}
}

// Restore rolls the ledger back to a previously captured snapshot.
// Used by the transaction coordinator to undo a partially applied
// transition after a storage failure.
func (l *Ledger) Restore(s model.LedgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.available = s.Available
	l.used = s.Used
	l.realizedPnL = s.RealizedPnL
}

// Reset re-initializes the ledger for a new session.
func (l *Ledger) Reset(startingBalance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.available = startingBalance
	l.used = decimal.Zero
	l.realizedPnL = decimal.Zero
}
