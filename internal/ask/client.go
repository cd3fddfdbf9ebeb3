// Package ask talks to the external inference endpoint that backs every assistant.
package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/assistgate/internal/metrics"
)

// Request is the body forwarded to the ask endpoint.
type Request struct {
	Message   string `json:"message"`
	Context   string `json:"context"`
	Model     string `json:"model,omitempty"`
	SessionID string `json:"sessionId"`
	Address   string `json:"address"`
}

// Response is the ask endpoint answer. Only SessionID and Output are guaranteed.
type Response struct {
	Network      string `json:"network,omitempty"`
	Model        string `json:"model,omitempty"`
	TxHash       string `json:"txHash,omitempty"`
	ExplorerLink string `json:"explorerLink,omitempty"`
	Output       string `json:"output"`
	SessionID    string `json:"sessionId"`
}

// Asker is implemented by Client; handlers depend on it.
type Asker interface {
	Ask(ctx context.Context, req Request) (Response, error)
}

// Options configures a Client.
type Options struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	HTTPClient *http.Client
	// Breaker is optional.
	Breaker Breaker
}

// Client posts requests to the ask endpoint with bounded retries on transient failures.
type Client struct {
	url        string
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	http       *http.Client
	breaker    Breaker
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{url: opts.URL, timeout: opts.Timeout, maxRetries: opts.MaxRetries, retryBase: opts.RetryBase, http: hc, breaker: opts.Breaker}
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.url }

// Ask forwards req. A 429 is returned immediately as *RateLimitError; 502/503/504 and
// connection failures are retried with exponential backoff. When every attempt failed
// the route's breaker opens and later calls fail fast until the cooldown ends.
func (c *Client) Ask(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, &ValidationError{Message: "message is required"}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode ask request: %w", err)
	}

	route := req.Context + ":" + req.Model
	if c.breaker != nil && c.breaker.IsOpen(ctx, route) {
		metrics.ObserveUpstream(req.Context, "breaker_open", 0)
		return Response{}, fmt.Errorf("%w: %s is cooling down", ErrUpstreamUnavailable, route)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase * time.Duration(1<<(attempt-1))
			log.Warn().Err(lastErr).Str("context", req.Context).Int("attempt", attempt).Dur("backoff", backoff).Msg("ask upstream failed; retrying")
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		resp, err := c.do(ctx, body)
		if err == nil {
			metrics.ObserveUpstream(req.Context, "ok", time.Since(start))
			if c.breaker != nil {
				c.breaker.Close(ctx, route)
			}
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
	}

	metrics.ObserveUpstream(req.Context, resultLabel(lastErr), time.Since(start))
	if IsTransient(lastErr) {
		if c.breaker != nil && ctx.Err() == nil {
			c.breaker.Open(ctx, route)
		}
		return Response{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
	}
	return Response{}, lastErr
}

func (c *Client) do(ctx context.Context, body []byte) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build ask request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read ask response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, &RateLimitError{Message: upstreamMessage(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Message: upstreamMessage(raw)}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("decode ask response: %w", err)
	}
	return out, nil
}

func upstreamMessage(raw []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		return e.Error
	}
	return ""
}

func resultLabel(err error) string {
	var httpErr *HTTPError
	switch {
	case IsRateLimited(err):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	default:
		return "error"
	}
}
