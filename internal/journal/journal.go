// Package journal defines the persistence interface for the session
// record: every committed trade and the periodic equity curve.
// Implementations include PostgreSQL (source of truth) and in-memory
// (for testing and paper sessions without a database).
//
// The transaction coordinator writes a trade record inside its critical
// section; a journal failure there aborts and rolls back the whole
// transition, which is why Store errors matter.
package journal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// TradeRecord is an immutable record of one committed transition.
// Once written, these are never modified or deleted.
type TradeRecord struct {
	ID            string           `json:"id" db:"id"`
	SessionID     string           `json:"session_id" db:"session_id"`
	Segment       string           `json:"segment" db:"segment"`
	SecurityID    string           `json:"security_id" db:"security_id"`
	Side          model.Side       `json:"side" db:"side"`
	Kind          model.IntentKind `json:"kind" db:"kind"`
	Quantity      int64            `json:"quantity" db:"quantity"`
	Price         decimal.Decimal  `json:"price" db:"price"`
	Fee           decimal.Decimal  `json:"fee" db:"fee"`
	RealizedDelta decimal.Decimal  `json:"realized_delta" db:"realized_delta"`
	Reason        model.ExitReason `json:"reason,omitempty" db:"reason"`
	Timestamp     time.Time        `json:"timestamp" db:"timestamp"`
}

// EquityPoint is one sample of the session equity curve.
type EquityPoint struct {
	SessionID     string          `json:"session_id" db:"session_id"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	TotalEquity   decimal.Decimal `json:"total_equity" db:"total_equity"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// Store is the persistence interface for session reporting.
type Store interface {
	// RecordTrade appends an immutable trade record.
	RecordTrade(ctx context.Context, rec *TradeRecord) error

	// RecordEquity appends an equity curve sample.
	RecordEquity(ctx context.Context, pt *EquityPoint) error

	// TradesBySession returns all trades of a session, oldest first.
	TradesBySession(ctx context.Context, sessionID string) ([]TradeRecord, error)

	// EquityCurve returns the equity samples of a session, oldest first.
	EquityCurve(ctx context.Context, sessionID string) ([]EquityPoint, error)
}
