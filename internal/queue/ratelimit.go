package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RateLimiter is a per-user fixed hourly window.
type RateLimiter struct {
	redis *redis.Client
	limit int64
}

func NewRateLimiter(rdb *redis.Client, limit int64) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit}
}

// Allow counts one AI request in the user's current UTC hour. A limit of
// zero or less disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, userID string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(time.Hour)
	windowEnd := windowStart.Add(time.Hour)
	if r.limit <= 0 {
		return true, 0, windowEnd, nil
	}
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("maria:ratelimit:%s:%s", userID, windowStart.Format("2006010215"))
	res, err := incrWithTTLScript.Run(ctx, r.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= r.limit, res, windowEnd, nil
}

// Deduplicator remembers alert ids for a while so an alert read twice from
// the stream is delivered to operators once.
type Deduplicator struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDeduplicator(rdb *redis.Client, prefix string, ttl time.Duration) *Deduplicator {
	return &Deduplicator{redis: rdb, prefix: prefix, ttl: ttl}
}

// MarkFirst claims an alert id. False means another delivery holds it.
func (d *Deduplicator) MarkFirst(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("%s:%s", d.prefix, id)
	ok, err := d.redis.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}

// Forget releases an id so a failed attempt can be retried.
func (d *Deduplicator) Forget(ctx context.Context, id string) error {
	if err := d.redis.Del(ctx, fmt.Sprintf("%s:%s", d.prefix, id)).Err(); err != nil {
		return fmt.Errorf("dedupe del: %w", err)
	}
	return nil
}
