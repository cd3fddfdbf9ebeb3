package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/assistgate/internal/metrics"
)

// Queue is the consumer side of RedisQueue.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	Depths(ctx context.Context) (Depth, error)
}

// ObjectStore is implemented by storage.S3Client.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string) error
}

type Config struct {
	Concurrency  int
	MaxAttempts  int
	PollTimeout  time.Duration
	PutTimeout   time.Duration
	DepthEvery   time.Duration
	ConsumerName string
}

// Pool uploads queued jobs. Failed uploads are re-queued until MaxAttempts, then dead-lettered.
type Pool struct {
	cfg   Config
	q     Queue
	store ObjectStore
	wg    sync.WaitGroup
}

func NewPool(cfg Config, q Queue, store ObjectStore) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.PutTimeout <= 0 {
		cfg.PutTimeout = time.Minute
	}
	if cfg.DepthEvery <= 0 {
		cfg.DepthEvery = 15 * time.Second
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "archiver"
	}
	return &Pool{cfg: cfg, q: q, store: store}
}

// Start launches the workers and the depth reporter; they stop when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	p.wg.Add(1)
	go p.reportDepth(ctx)
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	consumer := p.cfg.ConsumerName + "-" + strconv.Itoa(id)
	log.Info().Int("worker", id).Msg("archive worker started")
	for {
		if ctx.Err() != nil {
			log.Info().Int("worker", id).Msg("archive worker stopped")
			return
		}
		msgID, data, err := p.q.Dequeue(ctx, consumer, p.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("archive dequeue error")
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if msgID == "" {
			continue
		}
		p.handle(ctx, data)
		if err := p.q.Ack(context.Background(), msgID); err != nil {
			log.Warn().Err(err).Str("msg_id", msgID).Msg("archive ack failed")
		}
	}
}

// handle processes one payload. It never returns an error: the outcome is a store, a retry or a DLQ entry.
func (p *Pool) handle(ctx context.Context, data []byte) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil || job.Key == "" {
		p.deadLetter(data, "invalid payload")
		return
	}

	err := p.upload(ctx, job)
	if err == nil {
		metrics.IncArchive("stored")
		log.Info().Str("key", job.Key).Str("kind", string(job.Kind)).Int("size", len(job.Data)).Msg("artifact archived")
		return
	}

	job.Attempts++
	if job.Attempts >= p.cfg.MaxAttempts || ctx.Err() != nil {
		payload, _ := json.Marshal(job)
		p.deadLetter(payload, err.Error())
		return
	}
	log.Warn().Err(err).Str("key", job.Key).Int("attempt", job.Attempts).Msg("archive upload failed; requeueing")
	payload, _ := json.Marshal(job)
	if qerr := p.q.Enqueue(context.Background(), payload); qerr != nil {
		p.deadLetter(payload, fmt.Sprintf("%v; requeue: %v", err, qerr))
		return
	}
	metrics.IncArchive("retry")
}

func (p *Pool) upload(ctx context.Context, job Job) error {
	body := job.Data
	meta := map[string]string{
		"name": job.FileName,
		"kind": string(job.Kind),
	}
	if job.SessionID != "" {
		meta["session-id"] = job.SessionID
	}
	if job.Sealed {
		meta["encrypted"] = "true"
		meta["encryption-format"] = "GCM3NCR0"
	}
	cctx, cancel := context.WithTimeout(ctx, p.cfg.PutTimeout)
	defer cancel()
	return p.store.Put(cctx, job.Key, body, job.ContentType, meta)
}

func (p *Pool) deadLetter(payload []byte, reason string) {
	metrics.IncArchive("dlq")
	log.Error().Str("reason", reason).Msg("archive job moved to DLQ")
	if err := p.q.AddDLQ(context.Background(), payload, reason); err != nil {
		log.Error().Err(err).Msg("archive DLQ write failed")
	}
}

func (p *Pool) reportDepth(ctx context.Context) {
	defer p.wg.Done()
	t := time.NewTicker(p.cfg.DepthEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d, err := p.q.Depths(ctx)
			if err != nil {
				continue
			}
			metrics.SetQueueDepth("backlog", d.Backlog)
			metrics.SetQueueDepth("pending", d.Pending)
			metrics.SetQueueDepth("dlq", d.DLQ)
		}
	}
}
