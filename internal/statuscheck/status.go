package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Pinger models the minimal capability we need from Redis and the archive bucket.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the dependencies behind the gateway.
type Checker struct {
	redis      Pinger
	s3         Pinger
	s3Bucket   string
	askURL     string
	extractors []string
	httpClient *http.Client
}

// Options configures the Checker. A nil Redis or S3 means the feature is disabled.
type Options struct {
	Redis      Pinger
	S3         Pinger
	S3Bucket   string
	AskURL     string
	Extractors []string
	HTTPClient *http.Client
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	OK       bool   `json:"ok"`
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Upstream Status `json:"upstream"`
	PDF      Status `json:"pdf"`
}

func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Checker{
		redis:      opts.Redis,
		s3:         opts.S3,
		s3Bucket:   opts.S3Bucket,
		askURL:     strings.TrimSpace(opts.AskURL),
		extractors: opts.Extractors,
		httpClient: client,
	}
}

// Summary returns the current status snapshot. OK is false only when a configured
// dependency is down; disabled optional features do not count.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
		Upstream: c.checkUpstream(ctx),
		PDF:      c.checkPDF(),
	}
	s.OK = s.Upstream.OK && s.PDF.OK &&
		(c.redis == nil || s.Redis.OK) &&
		(c.s3 == nil || s.S3.OK)
	return s
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "Not configured (in-memory sessions and limits)"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: false, Message: "Archive disabled"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected to " + c.s3Bucket}
}

// checkUpstream only proves the ask endpoint answers HTTP; it accepts POST only, so any
// status below 500 counts as reachable.
func (c *Checker) checkUpstream(ctx context.Context) Status {
	if c.askURL == "" {
		return Status{OK: false, Message: "ASK_URL missing"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.askURL, nil)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Reachable"}
}

func (c *Checker) checkPDF() Status {
	if len(c.extractors) == 0 {
		return Status{OK: false, Message: "No extractor configured"}
	}
	return Status{OK: true, Message: strings.Join(c.extractors, ", ")}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
