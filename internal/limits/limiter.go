// Package limits implements pre-entry exposure caps: how much notional
// a single instrument may carry and how much the whole session may
// carry across every open position. Exits are never limited — reducing
// risk is always allowed.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerInstrumentLimitExceeded is returned when an entry would push
	// one instrument's committed notional beyond the per-instrument
	// maximum.
	ErrPerInstrumentLimitExceeded = errors.New("limits: per-instrument exposure limit exceeded")

	// ErrSessionLimitExceeded is returned when an entry would push the
	// aggregate notional across all open positions beyond the session
	// maximum.
	ErrSessionLimitExceeded = errors.New("limits: session exposure limit exceeded")
)

// PositionLimiter enforces notional exposure limits.
//
// A zero (or negative) limit disables that check — useful for paper
// sessions that only want one of the two caps.
type PositionLimiter struct {
	// MaxPerInstrument is the maximum committed notional in any single
	// instrument key.
	MaxPerInstrument decimal.Decimal

	// MaxSession is the maximum aggregate notional across all open
	// positions in the session.
	MaxSession decimal.Decimal
}

// NewPositionLimiter creates a limiter with the given per-instrument
// and session-wide notional caps.
func NewPositionLimiter(maxPerInstrument, maxSession decimal.Decimal) *PositionLimiter {
	return &PositionLimiter{
		MaxPerInstrument: maxPerInstrument,
		MaxSession:       maxSession,
	}
}

// CheckEntry validates whether an entry of notionalDelta respects the
// limits.
//
// Parameters:
//   - instrumentKey: canonical SEGMENT:SECURITY_ID of the entry
//   - notionalDelta: entry price × quantity (always positive)
//   - existing: map of instrument key → currently committed notional
//
// Returns nil when the entry is within limits, or a sentinel error
// naming the violated cap.
func (l *PositionLimiter) CheckEntry(
	instrumentKey string,
	notionalDelta decimal.Decimal,
	existing map[string]decimal.Decimal,
) error {
	if l.MaxPerInstrument.IsPositive() {
		next := existing[instrumentKey].Add(notionalDelta)
		if next.GreaterThan(l.MaxPerInstrument) {
			return ErrPerInstrumentLimitExceeded
		}
	}

	if l.MaxSession.IsPositive() {
		total := notionalDelta
		for _, n := range existing {
			total = total.Add(n)
		}
		if total.GreaterThan(l.MaxSession) {
			return ErrSessionLimitExceeded
		}
	}

	return nil
}
