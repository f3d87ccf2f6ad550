package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
)

// RedisIdempotencyStore implements IdempotencyStore on Redis, so
// replays survive a process restart. Results are stored JSON-encoded
// with Redis-native TTL expiry.
type RedisIdempotencyStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisIdempotencyStore creates a Redis-backed store.
func NewRedisIdempotencyStore(rdb *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, prefix: "idem:"}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (model.Result, bool, error) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Result{}, false, nil
	}
	if err != nil {
		return model.Result{}, false, fmt.Errorf("idempotency get %s: %w", key, err)
	}

	var res model.Result
	if err := json.Unmarshal(data, &res); err != nil {
		// A corrupt record is treated as a miss; the transaction will
		// re-execute and overwrite it.
		return model.Result{}, false, nil
	}
	return res, true, nil
}

func (s *RedisIdempotencyStore) Put(ctx context.Context, key string, res model.Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("idempotency encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency put %s: %w", key, err)
	}
	return nil
}
