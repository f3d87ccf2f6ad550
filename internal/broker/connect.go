package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Strategy is one ranked way of constructing a broker client — e.g.
// live credentials first, sandbox second, paper last.
type Strategy struct {
	Name  string
	Build func(ctx context.Context) (Broker, error)
}

// ErrNoStrategy is returned when every construction strategy fails.
var ErrNoStrategy = errors.New("broker: all connect strategies failed")

// Connect tries each strategy in rank order with exponential backoff
// between attempts, returning the first broker that constructs. One
// pass per strategy — ranking, not an endless retry loop.
func Connect(ctx context.Context, backoff time.Duration, strategies ...Strategy) (Broker, error) {
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	var lastErr error
	wait := backoff
	for _, s := range strategies {
		b, err := s.Build(ctx)
		if err == nil {
			slog.Info("broker connected", "strategy", s.Name)
			return b, nil
		}
		lastErr = err
		slog.Warn("broker connect failed", "strategy", s.Name, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStrategy, lastErr)
	}
	return nil, ErrNoStrategy
}
