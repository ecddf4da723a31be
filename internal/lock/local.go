package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Local is an in-process Locker for single-instance deployments and tests.
// ttl is ignored: the lock is held until fn returns.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// WithLock has the same contract as Locker.WithLock. Idle keys are dropped
// so the map only holds users with a mutation in flight.
func (l *Local) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	s := l.join(key)
	defer l.leave(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ch }()
	return fn(ctx)
}

func (l *Local) join(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	return s
}

func (l *Local) leave(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.waiters--; s.waiters == 0 {
		delete(l.slots, key)
	}
}
