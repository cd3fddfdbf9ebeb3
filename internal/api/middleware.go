package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/assistgate/internal/logger"
)

const requestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// withRequestContext assigns a request id, attaches a request logger to the context,
// recovers panics and logs one line per request.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		l := logger.WithRequest(id, r.URL.Path)
		r = r.WithContext(l.WithContext(r.Context()))
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				l.Error().Interface("panic", p).Msg("handler panic")
				if rec.status == 0 {
					writeError(rec, http.StatusInternalServerError, "Internal server error", nil)
				}
			}
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			ev := l.Info()
			if rec.status >= 500 {
				ev = l.Error()
			}
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				ev = l.Debug()
			}
			ev.Str("method", r.Method).Int("status", rec.status).Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).Msg("request")
		}()
		next.ServeHTTP(rec, r)
	})
}

func reqLogger(r *http.Request) *zerolog.Logger { return zerolog.Ctx(r.Context()) }

// clientKey identifies the caller for rate limiting: wallet address when given, else IP.
func clientKey(r *http.Request, address string) string {
	if a := strings.TrimSpace(address); a != "" {
		return strings.ToLower(a)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
