package ask

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries int) *Client {
	return NewClient(Options{URL: url, Timeout: 2 * time.Second, MaxRetries: retries, RetryBase: time.Millisecond})
}

func TestAsk_ForwardsRequestAndDecodesResponse(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sessionId":    "s-1",
			"output":       "Bonjour",
			"network":      "base-sepolia",
			"txHash":       "0xabc",
			"explorerLink": "https://example.test/tx/0xabc",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	resp, err := c.Ask(context.Background(), Request{Message: "hello", Context: "batman", Model: "mistral", SessionID: "s-1", Address: "0x0"})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", resp.Output)
	assert.Equal(t, "s-1", resp.SessionID)
	assert.Equal(t, "0xabc", resp.TxHash)
	assert.Equal(t, "batman", got.Context)
	assert.Equal(t, "mistral", got.Model)
	assert.Equal(t, "hello", got.Message)
}

func TestAsk_OmitsEmptyModel(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"sessionId":"x","output":"ok"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).Ask(context.Background(), Request{Message: "m", Context: "aeve"})
	require.NoError(t, err)
	_, hasModel := raw["model"]
	assert.False(t, hasModel)
	assert.Contains(t, raw, "sessionId")
	assert.Contains(t, raw, "address")
}

func TestAsk_RateLimitIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Ask(context.Background(), Request{Message: "m"})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, "slow down", rl.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAsk_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"sessionId":"s","output":"done"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL, 2).Ask(context.Background(), Request{Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Output)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestAsk_ExhaustedRetriesWrapUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 1).Ask(context.Background(), Request{Message: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestAsk_ClientErrorCarriesUpstreamMessage(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown context"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Ask(context.Background(), Request{Message: "m"})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "unknown context", httpErr.Error())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAsk_RejectsEmptyMessage(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0", 0).Ask(context.Background(), Request{Message: "   "})
	var valErr *ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestClassifier(t *testing.T) {
	assert.True(t, IsTransient(&HTTPError{StatusCode: 504}))
	assert.False(t, IsTransient(&HTTPError{StatusCode: 500}))
	assert.False(t, IsTransient(&RateLimitError{}))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsFatal(&HTTPError{StatusCode: 404}))
	assert.False(t, IsFatal(&HTTPError{StatusCode: 429}))
	assert.Equal(t, "API error: 500", (&HTTPError{StatusCode: 500}).Error())
}

func TestAsk_BreakerOpensAfterExhaustedRetries(t *testing.T) {
	var calls int32
	healthy := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if atomic.LoadInt32(&healthy) == 1 {
			_, _ = w.Write([]byte(`{"sessionId":"s","output":"back"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	br := NewMemoryBreaker(30*time.Second, 5*time.Minute)
	br.now = func() time.Time { return now }
	c := NewClient(Options{URL: srv.URL, MaxRetries: 0, RetryBase: time.Millisecond, Breaker: br})
	req := Request{Message: "m", Context: "batman", Model: "mistral"}

	_, err := c.Ask(context.Background(), req)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	_, err = c.Ask(context.Background(), req)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "open breaker must not call upstream")

	// other routes are unaffected
	other := req
	other.Model = "anthropic"
	_, _ = c.Ask(context.Background(), other)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	atomic.StoreInt32(&healthy, 1)
	now = now.Add(31 * time.Second)
	resp, err := c.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Output)
	assert.False(t, br.IsOpen(context.Background(), "batman:mistral"))
}

func TestCooldown(t *testing.T) {
	assert.Equal(t, 30*time.Second, cooldown(30*time.Second, 5*time.Minute, 1))
	assert.Equal(t, 60*time.Second, cooldown(30*time.Second, 5*time.Minute, 2))
	assert.Equal(t, 4*time.Minute, cooldown(30*time.Second, 5*time.Minute, 4))
	assert.Equal(t, 5*time.Minute, cooldown(30*time.Second, 5*time.Minute, 9))
}

func TestMemoryBreaker_HalfOpenAdmitsOneCaller(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	br := NewMemoryBreaker(30*time.Second, 5*time.Minute)
	br.now = func() time.Time { return now }
	const route = "batman:mistral"

	br.Open(ctx, route)
	assert.True(t, br.IsOpen(ctx, route))

	now = now.Add(30 * time.Second)
	assert.False(t, br.IsOpen(ctx, route), "first caller after cooldown goes through")
	assert.True(t, br.IsOpen(ctx, route), "others wait while it is in flight")
	assert.True(t, br.IsOpen(ctx, route))

	// the call failed again: a longer cooldown starts
	br.Open(ctx, route)
	now = now.Add(59 * time.Second)
	assert.True(t, br.IsOpen(ctx, route))
	now = now.Add(time.Second)
	assert.False(t, br.IsOpen(ctx, route))

	// a caller that never reports back loses the lease after base
	now = now.Add(30 * time.Second)
	assert.False(t, br.IsOpen(ctx, route))
	assert.True(t, br.IsOpen(ctx, route))

	br.Close(ctx, route)
	assert.False(t, br.IsOpen(ctx, route))
	assert.False(t, br.IsOpen(ctx, route))
}
