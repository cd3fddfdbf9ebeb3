package api

import (
	"bytes"
	"io"
	"net/http"

	"github.com/local/assistgate/internal/archive"
	"github.com/local/assistgate/internal/metrics"
	"github.com/local/assistgate/internal/quote"
)

// handleQuoteHTML accepts either a quote document or {"output": "<chat text>"} and
// answers with the rendered HTML as a download.
func (s *Server) handleQuoteHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, jsonBodyLimit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	q, ok := quote.Parse(body)
	if !ok {
		var wrapped struct {
			Output string `json:"output"`
		}
		if err := decodeBytes(body, &wrapped); err == nil && wrapped.Output != "" {
			q, ok = quote.Detect(wrapped.Output)
		}
	}
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "No quote found", nil)
		return
	}

	var buf bytes.Buffer
	if err := quote.RenderHTML(q, &buf); err != nil {
		writeErr(w, r, err)
		return
	}
	if !q.Devis.TotalsConsistent() {
		reqLogger(r).Warn().Str("numero", q.Devis.Numero.String()).Msg("quote totals do not add up")
	}
	metrics.IncArtifact("quote_html")
	s.archiveAsync(r.Context(), r, archive.KindQuote, q.FileName(), "text/html", r.URL.Query().Get("sessionId"), buf.Bytes())

	attachment(w, "text/html; charset=utf-8", q.FileName())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
