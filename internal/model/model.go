// Package model defines the core domain types shared across the
// scalper engine. All monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == Long || s == Short
}

// PositionKey identifies one open position: the same instrument held
// long and short are two distinct book entries.
type PositionKey struct {
	Segment    string `json:"segment"`
	SecurityID string `json:"security_id"`
	Side       Side   `json:"side"`
}

// String renders the key as SEGMENT:SECURITY_ID:SIDE for logs and
// idempotency keys.
func (k PositionKey) String() string {
	return k.Segment + ":" + k.SecurityID + ":" + string(k.Side)
}

// Position is one open holding at a PositionKey.
//
// NetQuantity of zero never appears here — the book deletes the entry
// on full exit.
type Position struct {
	Key            PositionKey     `json:"key"`
	NetQuantity    int64           `json:"net_quantity"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PeakPrice      decimal.Decimal `json:"peak_price"` // most favorable mark since entry
	EntryTimestamp time.Time       `json:"entry_timestamp"`
}

// UnrealizedPnL is the mark-to-market P&L of the open quantity:
// (current − avg) × qty for LONG, negated for SHORT.
func (p Position) UnrealizedPnL() decimal.Decimal {
	diff := p.CurrentPrice.Sub(p.AvgEntryPrice)
	pnl := diff.Mul(decimal.NewFromInt(p.NetQuantity))
	if p.Key.Side == Short {
		return pnl.Neg()
	}
	return pnl
}

// LedgerSnapshot is a point-in-time, internally consistent view of the
// session ledger. Total excludes realized P&L by design: cash from
// exits is already inside Available, so re-adding RealizedPnL would
// double count.
type LedgerSnapshot struct {
	Available   decimal.Decimal `json:"available"`
	Used        decimal.Decimal `json:"used"`
	Total       decimal.Decimal `json:"total"` // available + used
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// EquitySnapshot is a derived, ephemeral view: spendable cash plus the
// mark-to-market P&L of everything still open.
type EquitySnapshot struct {
	Balance       decimal.Decimal `json:"balance"` // ledger available
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalEquity   decimal.Decimal `json:"total_equity"` // balance + unrealized
	At            time.Time       `json:"at"`
}

// IntentKind distinguishes the two state transitions the coordinator
// knows how to execute.
type IntentKind string

const (
	KindEntry IntentKind = "ENTRY"
	KindExit  IntentKind = "EXIT"
)

// ExitReason tags why an exit intent was emitted.
type ExitReason string

const (
	ReasonManual       ExitReason = "MANUAL"
	ReasonTakeProfit   ExitReason = "TP"
	ReasonStopLoss     ExitReason = "SL"
	ReasonTrailingStop ExitReason = "TRAILING_STOP"
	ReasonTimeStop     ExitReason = "TIME_STOP"
	ReasonDailyLossCap ExitReason = "DAILY_LOSS_CAP"
)

// Intent is a fully decided buy/sell instruction. The strategy engine
// (or the risk loop) decides what and when; the coordinator only
// executes.
type Intent struct {
	Key            PositionKey     `json:"key"`
	Kind           IntentKind      `json:"kind"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Fee            decimal.Decimal `json:"fee"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Reason         ExitReason      `json:"reason,omitempty"` // exits only
}

// Status is the typed outcome of a coordinator call. Business failures
// are values, never panics (hard failures are reserved for
// storage-layer unavailability).
type Status string

const (
	StatusOK                  Status = "OK"
	StatusInsufficientBalance Status = "INSUFFICIENT_BALANCE"
	StatusNoPosition          Status = "NO_POSITION"
	StatusInvalidPrice        Status = "INVALID_PRICE"
	StatusInvalidQuantity     Status = "INVALID_QUANTITY"
	StatusExposureLimit       Status = "EXPOSURE_LIMIT"
	StatusStorageError        Status = "STORAGE_ERROR"
	StatusRoutingError        Status = "ROUTING_ERROR"
)

// Result is what the coordinator returns. Success with
// FilledQuantity < requested quantity means the exit was capped to the
// available position size — a policy, not an error.
type Result struct {
	Status         Status          `json:"status"`
	OrderID        string          `json:"order_id,omitempty"`
	FilledQuantity int64           `json:"filled_quantity"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	RealizedDelta  decimal.Decimal `json:"realized_delta"`
	Error          string          `json:"error,omitempty"`
}

// Success reports whether the transition committed.
func (r Result) Success() bool {
	return r.Status == StatusOK
}
