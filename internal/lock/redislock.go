// Package lock serialises per-user cart mutations.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/shopping-optimizer/internal/resilience"
)

var (
	// ErrNotConfigured is returned when a Locker has no backing client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrLeaseLost means the key expired or changed owner while fn ran.
	ErrLeaseLost = errors.New("lock: lease lost")
)

const defaultTTL = 30 * time.Second

// Both scripts act only while KEYS[1] still holds this holder's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a Redis lease lock. Each holder writes a random token, renews
// the lease at a third of its TTL while fn runs and deletes the key only if
// the token is still its own.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
}

// WithLock runs fn while holding key. fn's context is cancelled if the lease
// is lost, and WithLock then reports ErrLeaseLost. If the lock cannot be
// taken before ctx ends, ctx.Err() is returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer l.release(key, token)

	leaseCtx, cancel := context.WithCancelCause(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		l.keepAlive(leaseCtx, cancel, key, token, ttl)
	}()

	err := fn(leaseCtx)
	lost := errors.Is(context.Cause(leaseCtx), ErrLeaseLost)
	cancel(nil)
	<-renewed

	if lost {
		return fmt.Errorf("%w: %s", ErrLeaseLost, key)
	}
	return err
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	base := l.RetryBackoff
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		wait := min(resilience.Backoff(base, min(attempt, 6), 0.2), 500*time.Millisecond)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) keepAlive(ctx context.Context, lose context.CancelCauseFunc, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
			if ctx.Err() != nil {
				return
			}
			if err != nil || n == 0 {
				lose(ErrLeaseLost)
				return
			}
		}
	}
}

func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
