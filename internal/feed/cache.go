// Package feed delivers (segment, security_id) → last traded price
// samples into the engine: a concurrency-safe tick cache that callers
// inject wherever a price lookup is needed, and a websocket consumer
// that keeps it warm.
//
// The cache is an injected value, not a process-wide singleton, so
// tests can substitute deterministic price sources.
package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one market-data sample.
type Tick struct {
	Segment    string          `json:"segment"`
	SecurityID string          `json:"security_id"`
	LTP        decimal.Decimal `json:"ltp"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TickCache holds the last traded price per instrument.
type TickCache struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

// NewTickCache creates an empty cache.
func NewTickCache() *TickCache {
	return &TickCache{ticks: make(map[string]Tick)}
}

// Put stores a tick, overwriting any previous sample for the
// instrument.
func (c *TickCache) Put(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[t.Segment+":"+t.SecurityID] = t
}

// LastPrice returns the last traded price for an instrument, or false
// when no tick has arrived yet.
func (c *TickCache) LastPrice(segment, securityID string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.ticks[segment+":"+securityID]
	if !ok {
		return decimal.Zero, false
	}
	return t.LTP, true
}

// Last returns the full last tick for an instrument.
func (c *TickCache) Last(segment, securityID string) (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.ticks[segment+":"+securityID]
	return t, ok
}
