package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/shopping-optimizer/internal/lock"
)

type locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

func redisLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerialisesHolders(t *testing.T) {
	rl, _ := redisLocker(t)
	for name, l := range map[string]locker{"redis": rl, "local": lock.NewLocal()} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var inside, maxInside int32
			var mu sync.Mutex
			var order []int
			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < 8; i++ {
				i := i
				g.Go(func() error {
					return l.WithLock(gctx, "lock:cart:u1", time.Second, func(context.Context) error {
						n := atomic.AddInt32(&inside, 1)
						mu.Lock()
						if n > maxInside {
							maxInside = n
						}
						order = append(order, i)
						mu.Unlock()
						time.Sleep(2 * time.Millisecond)
						atomic.AddInt32(&inside, -1)
						return nil
					})
				})
			}
			require.NoError(t, g.Wait())
			require.Equal(t, int32(1), maxInside)
			require.Len(t, order, 8)
		})
	}
}

func TestWithLockReleasesKey(t *testing.T) {
	l, mr := redisLocker(t)
	err := l.WithLock(context.Background(), "lock:cart:u2", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:cart:u2"))
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("lock:cart:u2"))
}

func TestWithLockGivesUpOnContext(t *testing.T) {
	l, mr := redisLocker(t)
	require.NoError(t, mr.Set("lock:cart:u3", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "lock:cart:u3", time.Second, func(context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	got, _ := mr.Get("lock:cart:u3")
	require.Equal(t, "someone-else", got)
}

func TestWithLockNotConfigured(t *testing.T) {
	err := lock.Locker{}.WithLock(context.Background(), "k", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNotConfigured)
}

func TestWithLockReportsLostLease(t *testing.T) {
	l, mr := redisLocker(t)
	err := l.WithLock(context.Background(), "lock:cart:u4", 30*time.Millisecond, func(ctx context.Context) error {
		require.NoError(t, mr.Set("lock:cart:u4", "thief"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.ErrorIs(t, err, lock.ErrLeaseLost)
	got, _ := mr.Get("lock:cart:u4")
	require.Equal(t, "thief", got, "release must not delete a successor's key")
}

func TestLocalWaiterTimesOut(t *testing.T) {
	l := lock.NewLocal()
	err := l.WithLock(context.Background(), "k", 0, func(context.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		return l.WithLock(ctx, "k", 0, func(context.Context) error { return nil })
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, l.WithLock(context.Background(), "k", 0, func(context.Context) error { return nil }))
}
