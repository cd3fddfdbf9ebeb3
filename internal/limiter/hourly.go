// Package limiter holds the per-address hourly quota and the per-session inflight guard.
package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Quota is implemented by RedisHourly and MemoryHourly.
type Quota interface {
	Allow(ctx context.Context, scope, key string) (Decision, error)
}

// RedisHourly is a fixed one-hour window counter shared across instances.
type RedisHourly struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisHourly(rdb *redis.Client, perHour int) *RedisHourly {
	return &RedisHourly{rdb: rdb, limit: perHour, window: time.Hour, now: time.Now}
}

func windowKey(scope, key string, window int64) string {
	return fmt.Sprintf("rl:%s:%s:%d", strings.ToLower(scope), strings.ToLower(key), window)
}

// Allow increments the counter for the current window. A limit of 0 disables the check.
func (h *RedisHourly) Allow(ctx context.Context, scope, key string) (Decision, error) {
	now := h.now()
	w := now.Unix() / int64(h.window.Seconds())
	reset := time.Unix((w+1)*int64(h.window.Seconds()), 0)
	if h.limit <= 0 {
		return Decision{Allowed: true, Reset: reset}, nil
	}

	k := windowKey(scope, key, w)
	pipe := h.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, h.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", k, err)
	}
	n := int(incr.Val())
	return decide(h.limit, n, reset), nil
}

func decide(limit, count int, reset time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= limit, Limit: limit, Remaining: remaining, Reset: reset}
}

// MemoryHourly is the single-process quota used when Redis is not configured.
// Each key gets a token bucket refilling perHour tokens per hour. Buckets that have
// refilled completely are dropped, since a fresh bucket behaves the same.
type MemoryHourly struct {
	limit     int
	mu        sync.Mutex
	bkts      map[string]*rate.Limiter
	lastSweep time.Time
	now       func() time.Time
}

const sweepEvery = time.Minute

func NewMemoryHourly(perHour int) *MemoryHourly {
	return &MemoryHourly{limit: perHour, bkts: map[string]*rate.Limiter{}, now: time.Now}
}

func (m *MemoryHourly) Allow(ctx context.Context, scope, key string) (Decision, error) {
	now := m.now()
	if m.limit <= 0 {
		return Decision{Allowed: true, Reset: now}, nil
	}
	k := strings.ToLower(scope) + ":" + strings.ToLower(key)
	m.mu.Lock()
	m.sweep(now)
	b, ok := m.bkts[k]
	if !ok {
		b = rate.NewLimiter(rate.Every(time.Hour/time.Duration(m.limit)), m.limit)
		m.bkts[k] = b
	}
	m.mu.Unlock()

	allowed := b.AllowN(now, 1)
	remaining := int(b.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	reset := now
	if !allowed {
		reset = now.Add(time.Hour / time.Duration(m.limit))
	}
	return Decision{Allowed: allowed, Limit: m.limit, Remaining: remaining, Reset: reset}, nil
}

func (m *MemoryHourly) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepEvery {
		return
	}
	m.lastSweep = now
	for k, b := range m.bkts {
		if b.TokensAt(now) >= float64(m.limit) {
			delete(m.bkts, k)
		}
	}
}

// Len is the number of buckets held.
func (m *MemoryHourly) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bkts)
}
