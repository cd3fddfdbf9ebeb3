// Package api exposes the gateway HTTP routes.
package api

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/local/assistgate/internal/archive"
	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/chat"
	"github.com/local/assistgate/internal/filetype"
	"github.com/local/assistgate/internal/limiter"
	"github.com/local/assistgate/internal/metrics"
	"github.com/local/assistgate/internal/pdftext"
	"github.com/local/assistgate/internal/statuscheck"
	"github.com/local/assistgate/internal/store"
)

// Dependencies are the collaborators the handlers need. Archiver and Status may be nil.
type Dependencies struct {
	Asker          ask.Asker
	Sessions       store.Sessions
	Quota          limiter.Quota
	Inflight       *limiter.Inflight
	Extractor      pdftext.Extractor
	Detector       *filetype.Detector
	Archiver       *archive.Archiver
	Status         *statuscheck.Checker
	MaxUploadBytes int64
	Gzip           bool
}

type Server struct {
	deps Dependencies
	chat *chat.Service
	now  func() time.Time
}

func New(deps Dependencies) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.Inflight == nil {
		deps.Inflight = limiter.NewInflight(1)
	}
	return &Server{deps: deps, chat: chat.NewService(deps.Asker), now: time.Now}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/convert-pdf", s.handleConvertPDF)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/session/", s.handleSession)
	mux.HandleFunc("/api/cover-letter", s.handleCoverLetter)
	mux.HandleFunc("/api/cover-letter/pdf", s.handleCoverLetterPDF)
	mux.HandleFunc("/api/quote/html", s.handleQuoteHTML)
	mux.HandleFunc("/api/assistants", s.handleAssistants)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/chat/", s.handleChat)
}

// Handler returns the routes wrapped with request logging and, when enabled, gzip.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	var h http.Handler = withRequestContext(mux)
	if s.deps.Gzip {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	sum := s.deps.Status.Summary(r.Context())
	code := http.StatusOK
	if !sum.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}
