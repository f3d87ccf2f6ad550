package journal

import (
	"context"
	"sync"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and paper sessions. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	trades []TradeRecord
	curve  []EquityPoint
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordTrade(_ context.Context, rec *TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *rec)
	return nil
}

func (s *MemoryStore) RecordEquity(_ context.Context, pt *EquityPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.curve = append(s.curve, *pt)
	return nil
}

func (s *MemoryStore) TradesBySession(_ context.Context, sessionID string) ([]TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TradeRecord
	for _, t := range s.trades {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) EquityCurve(_ context.Context, sessionID string) ([]EquityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []EquityPoint
	for _, p := range s.curve {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}
