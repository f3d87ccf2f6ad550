package txn

import (
	"context"
	"sync"
	"time"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// DefaultIdempotencyTTL bounds how long a replayed request can still
// find its original result.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore maps idempotency keys to the result of the original
// execution. A hit means the request was already applied: the caller
// returns the recorded result verbatim and mutates nothing.
type IdempotencyStore interface {
	// Get returns the recorded result for key, if any.
	Get(ctx context.Context, key string) (model.Result, bool, error)

	// Put records the result for key with the given retention.
	Put(ctx context.Context, key string, res model.Result, ttl time.Duration) error
}

// MemoryIdempotencyStore implements IdempotencyStore with an in-memory
// map. Expired entries are swept lazily on access. Used for testing and
// single-process paper sessions; Redis backs it in production.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryIdempotencyEntry
	now     func() time.Time
}

type memoryIdempotencyEntry struct {
	result    model.Result
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates an empty in-memory store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]memoryIdempotencyEntry),
		now:     time.Now,
	}
}

// SetClock overrides the expiry clock. Tests only.
func (s *MemoryIdempotencyStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (model.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return model.Result{}, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return model.Result{}, false, nil
	}
	return e.result, true, nil
}

func (s *MemoryIdempotencyStore) Put(_ context.Context, key string, res model.Result, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryIdempotencyEntry{
		result:    res,
		expiresAt: s.now().Add(ttl),
	}
	s.sweepLocked()
	return nil
}

// sweepLocked drops expired entries. Caller holds the lock.
func (s *MemoryIdempotencyStore) sweepLocked() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
