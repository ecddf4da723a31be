package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, admits the event only while below the
// limit and reports when the oldest retained event leaves the window.
// Scores are microseconds since the epoch.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, ARGV[5])
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a sliding-window log kept in one Redis sorted set per key.
// Rejected events are not recorded, so a client hammering a closed window
// does not extend it. A nil Client admits everything.
type Limiter struct {
	Client redis.UniversalClient
	Prefix string
	Now    func() time.Time
}

func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	at := now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: max(limit, 0), ResetAt: at.Add(window)}, nil
	}

	res, err := slidingWindow.Run(ctx, l.Client,
		[]string{l.Prefix + key},
		at.UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.NewString(),
		max(window.Milliseconds(), 1),
	).Int64Slice()
	if err != nil {
		return Decision{Limit: limit, ResetAt: at.Add(window)}, fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{Limit: limit, ResetAt: at.Add(window)}, fmt.Errorf("sliding window %s: unexpected reply of %d values", key, len(res))
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: int(max(res[1], 0)),
		ResetAt:   time.UnixMicro(res[2]),
	}, nil
}
