package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/chat"
	"github.com/local/assistgate/internal/metrics"
)

func (s *Server) handleAssistants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assistants": chat.All()})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": chat.Trades()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/chat/"), "/")
	a, ok := chat.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown assistant", nil)
		return
	}
	var msg chat.Message
	if err := decodeJSON(w, r, jsonBodyLimit, &msg); err != nil {
		writeErr(w, r, err)
		return
	}

	release, err := s.admit(w, r, "chat", msg.SessionID, msg.Address)
	if err != nil {
		if errors.Is(err, errQuotaExceeded) {
			writeError(w, http.StatusTooManyRequests, a.RateLimitMessage, nil)
			return
		}
		writeErr(w, r, err)
		return
	}
	defer release()

	reply, err := s.chat.Send(r.Context(), a, msg)
	if err != nil {
		var chatErr *chat.Error
		if errors.As(err, &chatErr) {
			status := http.StatusBadGateway
			if ask.IsRateLimited(err) {
				metrics.IncRateLimited("upstream")
				status = http.StatusTooManyRequests
			}
			reqLogger(r).Warn().Err(err).Str("assistant", a.Name).Int("status", status).Msg("chat turn failed")
			writeError(w, status, chatErr.Message, nil)
			return
		}
		writeErr(w, r, err)
		return
	}
	s.touchSession(r.Context(), r, reply.SessionID, a.Context, msg.Address)
	writeJSON(w, http.StatusOK, reply)
}
