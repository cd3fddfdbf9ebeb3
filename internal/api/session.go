package api

import (
	"net/http"
	"strings"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/session/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id", nil)
		return
	}
	if s.deps.Sessions == nil {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	sess, ok, err := s.deps.Sessions.Get(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
