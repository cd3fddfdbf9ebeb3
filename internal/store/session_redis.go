package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Session is the metadata kept for one upstream conversation.
type Session struct {
	ID        string    `json:"sessionId"`
	Context   string    `json:"context"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	Turns     int       `json:"turns"`
}

// Sessions is implemented by RedisSessions and MemorySessions.
type Sessions interface {
	Touch(ctx context.Context, id, assistantCtx, address string) error
	Get(ctx context.Context, id string) (Session, bool, error)
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{client: client, ttl: ttl}
}

func (s *RedisSessions) key(id string) string { return fmt.Sprintf("session:%s", id) }

// Touch records one turn, creating the session on first use, and refreshes its TTL.
func (s *RedisSessions) Touch(ctx context.Context, id, assistantCtx, address string) error {
	if id == "" {
		return nil
	}
	k := s.key(id)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, k, "created_at", now)
	m := map[string]interface{}{"context": assistantCtx, "last_seen": now}
	if address != "" {
		m["address"] = address
	}
	pipe.HSet(ctx, k, m)
	pipe.HIncrBy(ctx, k, "turns", 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return nil
}

func (s *RedisSessions) Get(ctx context.Context, id string) (Session, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Session{}, false, err
	}
	if len(res) == 0 {
		return Session{}, false, nil
	}
	return fromHash(id, res), true, nil
}

func fromHash(id string, res map[string]string) Session {
	sess := Session{ID: id, Context: res["context"], Address: res["address"]}
	if v := res["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			sess.CreatedAt = t
		}
	}
	if v := res["last_seen"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			sess.LastSeen = t
		}
	}
	// ignore parse error; default 0
	sess.Turns, _ = strconv.Atoi(res["turns"])
	return sess
}
