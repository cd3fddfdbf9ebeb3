package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/chat"
	"github.com/local/assistgate/internal/metrics"
)

const jsonBodyLimit = 1 << 20

// admit reserves the session's single upstream slot and then applies the hourly
// quota for the caller. The returned release must be called once the upstream call is over.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, scope, sessionID, address string) (func(), error) {
	key := clientKey(r, address)
	slot := sessionID
	if slot == "" {
		slot = "anon:" + key
	}
	// in-flight first so a rejected duplicate does not spend quota
	release, ok := s.deps.Inflight.Allow(slot)
	if !ok {
		metrics.IncRateLimited("inflight")
		return nil, errBusy
	}

	if s.deps.Quota != nil {
		d, err := s.deps.Quota.Allow(r.Context(), scope, key)
		if err != nil {
			// quota backend down: serve rather than lock everyone out
			reqLogger(r).Error().Err(err).Str("scope", scope).Msg("rate limit check failed")
		} else {
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
			}
			if !d.Allowed {
				release()
				metrics.IncRateLimited("local")
				return nil, errQuotaExceeded
			}
		}
	}
	return release, nil
}

// touchSession records a successful turn; failures are logged only.
func (s *Server) touchSession(ctx context.Context, r *http.Request, sessionID, assistantCtx, address string) {
	if s.deps.Sessions == nil || sessionID == "" {
		return
	}
	if err := s.deps.Sessions.Touch(ctx, sessionID, assistantCtx, address); err != nil {
		reqLogger(r).Warn().Err(err).Str("session_id", sessionID).Msg("session touch failed")
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req ask.Request
	if err := decodeJSON(w, r, jsonBodyLimit, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeErr(w, r, &ask.ValidationError{Message: "message is required"})
		return
	}
	a, ok := chat.ByContext(req.Context)
	if !ok {
		writeErr(w, r, &ask.ValidationError{Message: "unknown context " + strconv.Quote(req.Context)})
		return
	}
	model, err := a.ResolveModel(req.Model)
	if err != nil {
		writeErr(w, r, &ask.ValidationError{Message: err.Error()})
		return
	}
	req.Model = model

	release, err := s.admit(w, r, "ask", req.SessionID, req.Address)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer release()

	resp, err := s.deps.Asker.Ask(r.Context(), req)
	if err != nil {
		if ask.IsRateLimited(err) {
			metrics.IncRateLimited("upstream")
		}
		writeErr(w, r, err)
		return
	}
	s.touchSession(r.Context(), r, resp.SessionID, req.Context, req.Address)
	writeJSON(w, http.StatusOK, resp)
}
