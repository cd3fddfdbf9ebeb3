package ask

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Breaker keeps a cooldown per upstream route (context:model) after it failed
// through all retries, so callers get an immediate 502 instead of waiting again.
type Breaker interface {
	IsOpen(ctx context.Context, route string) bool
	Open(ctx context.Context, route string)
	Close(ctx context.Context, route string)
}

// cooldown doubles base for each consecutive failure, capped at max.
func cooldown(base, max time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// RedisBreaker shares breaker state between gateway replicas.
type RedisBreaker struct {
	redis *redis.Client
	base  time.Duration
	max   time.Duration
}

func NewRedisBreaker(client *redis.Client, base, max time.Duration) *RedisBreaker {
	return &RedisBreaker{redis: client, base: base, max: max}
}

func breakerKey(route string) string { return fmt.Sprintf("cb:ask:%s", route) }

func leaseKey(route string) string { return breakerKey(route) + ":lease" }

func (b *RedisBreaker) Open(ctx context.Context, route string) {
	key := breakerKey(route)
	failures, err := b.redis.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		log.Warn().Err(err).Str("route", route).Msg("breaker open failed")
		return
	}
	wait := cooldown(b.base, b.max, int(failures))
	retryAt := time.Now().Add(wait)
	pipe := b.redis.TxPipeline()
	pipe.HSet(ctx, key, "state", "open", "retry_at", retryAt.Unix())
	pipe.Expire(ctx, key, b.max+10*time.Minute)
	pipe.Del(ctx, leaseKey(route))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("route", route).Msg("breaker open failed")
		return
	}

	log.Warn().Str("route", route).Dur("cooldown", wait).Int64("failures", failures).
		Time("retry_at", retryAt).Msg("ask breaker OPENED")
}

// IsOpen reports whether route is cooling down. Once the cooldown has expired the
// breaker is half-open: a single caller across all replicas takes the lease
// and reaches the upstream, the others keep getting true until Close or Open.
func (b *RedisBreaker) IsOpen(ctx context.Context, route string) bool {
	key := breakerKey(route)
	vals, err := b.redis.HMGet(ctx, key, "state", "retry_at").Result()
	if err != nil || len(vals) != 2 {
		return false
	}
	state, _ := vals[0].(string)
	switch state {
	case "open":
		retryStr, _ := vals[1].(string)
		retryAt, _ := strconv.ParseInt(retryStr, 10, 64)
		if time.Now().Unix() < retryAt {
			return true
		}
		b.redis.HSet(ctx, key, "state", "half_open")
		log.Info().Str("route", route).Msg("ask breaker HALF-OPEN")
	case "half_open":
	default:
		return false
	}
	// the lease expires on its own if the admitted request never reports back
	won, err := b.redis.SetNX(ctx, leaseKey(route), 1, b.base).Result()
	if err != nil {
		return false
	}
	return !won
}

func (b *RedisBreaker) Close(ctx context.Context, route string) {
	n, err := b.redis.Del(ctx, breakerKey(route), leaseKey(route)).Result()
	if err == nil && n > 0 {
		log.Info().Str("route", route).Msg("ask breaker CLOSED")
	}
}

type breakerState struct {
	failures   int
	retryAt    time.Time
	open       bool
	leaseUntil time.Time
}

// MemoryBreaker is the single-process Breaker used when Redis is not configured.
type MemoryBreaker struct {
	base, max time.Duration
	mu        sync.Mutex
	routes    map[string]*breakerState
	now       func() time.Time
}

func NewMemoryBreaker(base, max time.Duration) *MemoryBreaker {
	return &MemoryBreaker{base: base, max: max, routes: map[string]*breakerState{}, now: time.Now}
}

func (b *MemoryBreaker) Open(ctx context.Context, route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.routes[route]
	if !ok {
		st = &breakerState{}
		b.routes[route] = st
	}
	st.failures++
	st.open = true
	st.retryAt = b.now().Add(cooldown(b.base, b.max, st.failures))
	st.leaseUntil = time.Time{}
}

// IsOpen admits one caller per lease once the cooldown has expired.
func (b *MemoryBreaker) IsOpen(ctx context.Context, route string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.routes[route]
	if !ok {
		return false
	}
	now := b.now()
	if st.open {
		if now.Before(st.retryAt) {
			return true
		}
		st.open = false
	} else if now.Before(st.leaseUntil) {
		return true
	}
	st.leaseUntil = now.Add(b.base)
	return false
}

func (b *MemoryBreaker) Close(ctx context.Context, route string) {
	b.mu.Lock()
	delete(b.routes, route)
	b.mu.Unlock()
}
