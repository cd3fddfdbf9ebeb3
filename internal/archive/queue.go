package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultMaxLen caps both streams; XADD trims approximately beyond it.
const DefaultMaxLen = 10000

// RedisQueue is a Redis stream with a consumer group and a sibling dead-letter stream.
// Entries are deleted once acknowledged, so the stream only holds the backlog.
type RedisQueue struct {
	client    *redis.Client
	Stream    string
	Group     string
	DLQStream string
	MaxLen    int64
}

// Depth is the queue state reported as metrics.
type Depth struct {
	Backlog int64 // entries not yet acknowledged
	Pending int64 // delivered to a worker, not yet acknowledged
	DLQ     int64
}

// NewRedisQueue ensures the stream and consumer group exist.
func NewRedisQueue(ctx context.Context, client *redis.Client, stream, group string) (*RedisQueue, error) {
	q := &RedisQueue{client: client, Stream: stream, Group: group, DLQStream: stream + ":dlq", MaxLen: DefaultMaxLen}
	// MKSTREAM creates the stream if missing
	if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

// Enqueue adds a job as a single-field entry {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		MaxLen: q.MaxLen,
		Approx: true,
		Values: map[string]any{"data": string(payload)},
	}).Err()
}

// Dequeue blocks up to timeout for one message. An empty id means nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, nil
		}
		return "", nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", nil, nil
	}
	msg := res[0].Messages[0]
	switch t := msg.Values["data"].(type) {
	case string:
		return msg.ID, []byte(t), nil
	case []byte:
		return msg.ID, t, nil
	}
	return msg.ID, nil, nil
}

// Ack marks a message as processed and deletes it, dropping the artifact bytes from Redis.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.Stream, q.Group, msgID)
	pipe.XDel(ctx, q.Stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

// AddDLQ pushes a failed job to the DLQ stream with reason.
func (q *RedisQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.DLQStream,
		MaxLen: q.MaxLen,
		Approx: true,
		Values: map[string]any{"data": string(payload), "reason": reason},
	}).Err()
}

// Depths reports the backlog, the entries held by workers and the DLQ size.
func (q *RedisQueue) Depths(ctx context.Context) (Depth, error) {
	pipe := q.client.Pipeline()
	backlog := pipe.XLen(ctx, q.Stream)
	pending := pipe.XPending(ctx, q.Stream, q.Group)
	dlq := pipe.XLen(ctx, q.DLQStream)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Depth{}, err
	}
	d := Depth{Backlog: backlog.Val(), DLQ: dlq.Val()}
	if p := pending.Val(); p != nil {
		d.Pending = p.Count
	}
	return d, nil
}

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }
