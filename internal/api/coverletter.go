package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/local/assistgate/internal/archive"
	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/coverletter"
	"github.com/local/assistgate/internal/metrics"
)

const coverLetterContext = "aeve"

type coverLetterReq struct {
	coverletter.Form
	SessionID string `json:"sessionId"`
	Address   string `json:"address"`
}

func (s *Server) handleCoverLetter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req coverLetterReq
	if err := decodeJSON(w, r, jsonBodyLimit, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	form := req.Form.Normalize()
	if err := form.Validate(); err != nil {
		writeErr(w, r, err)
		return
	}

	release, err := s.admit(w, r, "ask", req.SessionID, req.Address)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	defer release()

	resp, err := s.deps.Asker.Ask(r.Context(), ask.Request{
		Message:   coverletter.BuildPrompt(form),
		Context:   coverLetterContext,
		SessionID: req.SessionID,
		Address:   req.Address,
	})
	if err != nil {
		if ask.IsRateLimited(err) {
			metrics.IncRateLimited("upstream")
		}
		writeErr(w, r, err)
		return
	}
	s.touchSession(r.Context(), r, resp.SessionID, coverLetterContext, req.Address)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": resp.SessionID, "output": resp.Output})
}

type coverLetterPDFReq struct {
	Letter    string `json:"letter"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleCoverLetterPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req coverLetterPDFReq
	if err := decodeJSON(w, r, jsonBodyLimit, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	if strings.TrimSpace(req.Letter) == "" {
		writeErr(w, r, &coverletter.FormError{Field: "letter", Message: "Cover letter text is required"})
		return
	}

	loc := coverletter.LocaleFor(req.Language)
	var buf bytes.Buffer
	pages, err := coverletter.Render(coverletter.Letter{
		Name:   req.Name,
		Body:   req.Letter,
		Date:   s.now(),
		Locale: loc,
	}, &buf)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	metrics.IncArtifact("cover_letter_pdf")
	fileName := loc.Download(req.Name)
	reqLogger(r).Info().Int("pages", pages).Str("language", loc.Language).Int("bytes", buf.Len()).Msg("cover letter rendered")
	s.archiveAsync(r.Context(), r, archive.KindCoverLetter, fileName, "application/pdf", req.SessionID, buf.Bytes())

	attachment(w, "application/pdf", fileName)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
