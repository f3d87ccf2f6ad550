// Package broker defines the narrow order-routing contract the engine
// calls through, plus a paper-trading implementation. The real broker
// adapter (or the paper simulator) is a black box that may fail and may
// be retried — the idempotency layer upstream makes retries safe.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// Order is one instruction transmitted to the market (or simulator).
type Order struct {
	Segment    string           `json:"segment"`
	SecurityID string           `json:"security_id"`
	Side       model.Side       `json:"side"`
	Kind       model.IntentKind `json:"kind"`
	Quantity   int64            `json:"quantity"`
	Price      decimal.Decimal  `json:"price"` // zero = fill at last known price
}

// Fill is the broker's acknowledgement of an executed order.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Broker transmits orders. Execute blocks until the order is
// acknowledged or fails; it must never be called while the engine's
// transaction lock is held.
type Broker interface {
	Execute(ctx context.Context, order Order) (Fill, error)
}
