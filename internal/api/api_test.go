package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/assistgate/internal/archive"
	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/coverletter"
	"github.com/local/assistgate/internal/limiter"
	"github.com/local/assistgate/internal/pdftext"
	"github.com/local/assistgate/internal/store"
)

type fakeAsker struct {
	mu   sync.Mutex
	reqs []ask.Request
	resp ask.Response
	err  error
}

func (f *fakeAsker) Ask(ctx context.Context, req ask.Request) (ask.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return ask.Response{}, f.err
	}
	resp := f.resp
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	return resp, nil
}

func (f *fakeAsker) last() ask.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type stubExtractor struct{ calls int }

func (s *stubExtractor) Name() string { return "stub" }
func (s *stubExtractor) Extract(ctx context.Context, data []byte) (pdftext.Result, error) {
	s.calls++
	return pdftext.Result{Text: "Jane Doe\nEngineer", Pages: 1, Backend: "stub"}, nil
}

type harness struct {
	srv      *Server
	h        http.Handler
	asker    *fakeAsker
	sessions *store.MemorySessions
	ex       *stubExtractor
}

func newHarness(t *testing.T, perHour int) *harness {
	t.Helper()
	hs := &harness{
		asker:    &fakeAsker{resp: ask.Response{Output: "Bonjour"}},
		sessions: store.NewMemorySessions(time.Hour),
		ex:       &stubExtractor{},
	}
	hs.srv = New(Dependencies{
		Asker:          hs.asker,
		Sessions:       hs.sessions,
		Quota:          limiter.NewMemoryHourly(perHour),
		Extractor:      hs.ex,
		MaxUploadBytes: 1 << 20,
	})
	hs.srv.now = func() time.Time { return time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC) }
	hs.h = hs.srv.Handler()
	return hs
}

func (hs *harness) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func (hs *harness) postJSON(path string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return hs.do(http.MethodPost, path, b, "application/json")
}

func upload(t *testing.T, fileName, contentType string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("sessionId", "s-up"))
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndRequestID(t *testing.T) {
	hs := newHarness(t, 10)
	rec := hs.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestStatus_WithoutCheckerIsOK(t *testing.T) {
	rec := newHarness(t, 10).do(http.MethodGet, "/status", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])
}

func TestAssistantsAndTrades(t *testing.T) {
	hs := newHarness(t, 10)

	rec := hs.do(http.MethodGet, "/api/assistants", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["assistants"], 3)
	assert.NotContains(t, rec.Body.String(), "limite de requêtes")

	rec = hs.do(http.MethodGet, "/api/trades", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "menuiserie")

	rec = hs.do(http.MethodPost, "/api/trades", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestAsk_ForwardsAndRecordsSession(t *testing.T) {
	hs := newHarness(t, 10)
	rec := hs.postJSON("/api/ask", map[string]string{"message": "Bonjour", "context": "batman", "sessionId": "s-1", "address": "0xABC"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bonjour", decode(t, rec)["output"])
	assert.Equal(t, "mistral", hs.asker.last().Model)
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hs.do(http.MethodGet, "/api/session/s-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "batman", got["context"])
	assert.EqualValues(t, 1, got["turns"])
}

func TestAsk_Validation(t *testing.T) {
	hs := newHarness(t, 10)

	rec := hs.postJSON("/api/ask", map[string]string{"message": "  ", "context": "batman"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", decode(t, rec)["message"])

	rec = hs.postJSON("/api/ask", map[string]string{"message": "hi", "context": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.postJSON("/api/ask", map[string]string{"message": "hi", "context": "batman", "model": "gpt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(http.MethodPost, "/api/ask", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decode(t, rec)["message"])

	assert.Empty(t, hs.asker.reqs)
}

func TestAsk_UpstreamRateLimit(t *testing.T) {
	hs := newHarness(t, 10)
	hs.asker.err = &ask.RateLimitError{}
	rec := hs.postJSON("/api/ask", map[string]string{"message": "hi", "context": "general"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", decode(t, rec)["message"])
}

func TestAsk_UpstreamUnavailable(t *testing.T) {
	hs := newHarness(t, 10)
	hs.asker.err = ask.ErrUpstreamUnavailable
	rec := hs.postJSON("/api/ask", map[string]string{"message": "hi", "context": "general"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAsk_LocalQuota(t *testing.T) {
	hs := newHarness(t, 1)
	body := map[string]string{"message": "hi", "context": "general", "address": "0x1"}
	require.Equal(t, http.StatusOK, hs.postJSON("/api/ask", body).Code)
	rec := hs.postJSON("/api/ask", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Len(t, hs.asker.reqs, 1)
}

func TestAsk_BusySessionKeepsQuota(t *testing.T) {
	hs := newHarness(t, 1)
	release, ok := hs.srv.deps.Inflight.Allow("s-busy")
	require.True(t, ok)

	body := map[string]string{"message": "hi", "context": "general", "address": "0x1", "sessionId": "s-busy"}
	rec := hs.postJSON("/api/ask", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "A request for this session is already in progress.", decode(t, rec)["message"])
	assert.Empty(t, hs.asker.reqs)

	release()
	rec = hs.postJSON("/api/ask", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 0, hs.srv.deps.Inflight.Len())
}

func TestSession_NotFound(t *testing.T) {
	rec := newHarness(t, 10).do(http.MethodGet, "/api/session/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decode(t, rec)["message"])
}

const quoteOutput = "Voici le devis\n```json\n" +
	`{"devis":{"numero":"DEV-7","entreprise":"Durand","date":"12/03/2025","commande":{"articles":[{"reference":"A1","designation":"Porte","quantite":1,"unite":"u","prix_unitaire":100,"montant_ht":100}],"sous_total_ht":100,"tva":{"taux":20,"montant":20},"total_ttc":120}}}` +
	"\n```"

func TestChat_DetectsQuote(t *testing.T) {
	hs := newHarness(t, 10)
	hs.asker.resp = ask.Response{Output: quoteOutput}
	rec := hs.postJSON("/api/chat/menuiserie", map[string]string{"message": "Un devis pour une porte", "sessionId": "s-9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode(t, rec)
	q, ok := got["quote"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DEV-7", q["devis"].(map[string]any)["numero"])
	assert.Equal(t, "batman", hs.asker.last().Context)
}

func TestChat_Errors(t *testing.T) {
	hs := newHarness(t, 10)

	rec := hs.postJSON("/api/chat/unknown", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	hs.asker.err = &ask.HTTPError{StatusCode: 500}
	rec = hs.postJSON("/api/chat/menuiserie", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "problème technique")

	hs.asker.err = &ask.RateLimitError{}
	rec = hs.postJSON("/api/chat/menuiserie", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "limite de requêtes")
}

func TestChat_LocalQuotaUsesAssistantMessage(t *testing.T) {
	hs := newHarness(t, 1)
	body := map[string]string{"message": "hi", "address": "0x2"}
	require.Equal(t, http.StatusOK, hs.postJSON("/api/chat/menuiserie", body).Code)
	rec := hs.postJSON("/api/chat/menuiserie", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "limite de requêtes")
}

func TestConvertPDF_MissingFile(t *testing.T) {
	hs := newHarness(t, 10)
	rec := hs.do(http.MethodPost, "/api/convert-pdf", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec)["message"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	rec = hs.do(http.MethodPost, "/api/convert-pdf", buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertPDF_RejectsNonPDFType(t *testing.T) {
	hs := newHarness(t, 10)
	body, ct := upload(t, "cv.txt", "text/plain", []byte("hello"))
	rec := hs.do(http.MethodPost, "/api/convert-pdf", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported file type. Only PDF files are supported.", decode(t, rec)["message"])
}

func TestConvertPDF_UnreadablePDFFallsBack(t *testing.T) {
	hs := newHarness(t, 10)
	body, ct := upload(t, "cv.pdf", "application/pdf", []byte("not really a pdf"))
	rec := hs.do(http.MethodPost, "/api/convert-pdf", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, convertFallbackMessage, got["message"])
	assert.Contains(t, got["text"], "cv.pdf")
	assert.Equal(t, 0, hs.ex.calls)
}

func TestConvertPDF_RenderedPDF(t *testing.T) {
	hs := newHarness(t, 10)
	hs.srv.deps.Extractor = pdftext.New([]string{"fitz", "plain"}, 0)

	var pdf bytes.Buffer
	_, err := coverletter.Render(coverletter.Letter{
		Name:   "Jane Doe",
		Body:   "EXPERIENCE\n\nSenior Engineer at Acme 2019 - 2023\n\nEDUCATION\n\nMSc Computer Science 2015 - 2017",
		Locale: coverletter.LocaleFor("english"),
	}, &pdf)
	require.NoError(t, err)

	body, ct := upload(t, "cv.pdf", "application/pdf", pdf.Bytes())
	rec := hs.do(http.MethodPost, "/api/convert-pdf", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode(t, rec)
	assert.Equal(t, convertOKMessage, got["message"])
	assert.Equal(t, float64(1), got["pages"])
	text, _ := got["text"].(string)
	assert.True(t, strings.HasPrefix(text, "# Resume: cv.pdf\n\n*PDF document with 1 page successfully extracted.*"), text)
	assert.Contains(t, text, "## Experience\n### Senior Engineer at Acme 2019 - 2023")
}

func TestConvertPDF_TooLarge(t *testing.T) {
	hs := newHarness(t, 10)
	hs.srv.deps.MaxUploadBytes = 16
	body, ct := upload(t, "cv.pdf", "application/pdf", bytes.Repeat([]byte("a"), 64))
	rec := hs.do(http.MethodPost, "/api/convert-pdf", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestResume_TextAndUnsupported(t *testing.T) {
	hs := newHarness(t, 10)

	body, ct := upload(t, "cv.md", "text/markdown", []byte("# Jane Doe\n\nEngineer"))
	rec := hs.do(http.MethodPost, "/api/resume", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode(t, rec)
	assert.Equal(t, "markdown", got["kind"])
	assert.Equal(t, "# Jane Doe\n\nEngineer", got["text"])

	body, ct = upload(t, "cv.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("PK\x03\x04"))
	rec = hs.do(http.MethodPost, "/api/resume", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = upload(t, "cv.pdf", "application/pdf", []byte("garbage"))
	rec = hs.do(http.MethodPost, "/api/resume", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteHTML(t *testing.T) {
	hs := newHarness(t, 10)

	rec := hs.postJSON("/api/quote/html", map[string]string{"output": "pas de devis ici"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = hs.postJSON("/api/quote/html", map[string]string{"output": quoteOutput})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Devis_DEV-7.html")
	assert.Contains(t, rec.Body.String(), "Porte")

	raw := quoteOutput[strings.Index(quoteOutput, "{") : strings.LastIndex(quoteOutput, "}")+1]
	rec = hs.do(http.MethodPost, "/api/quote/html", []byte(raw), "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCoverLetter(t *testing.T) {
	hs := newHarness(t, 10)

	rec := hs.postJSON("/api/cover-letter", map[string]string{"name": "Jane"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide the job description", decode(t, rec)["message"])

	hs.asker.resp = ask.Response{Output: "Dear hiring manager", SessionID: "s-cl"}
	rec = hs.postJSON("/api/cover-letter", map[string]string{"name": "Jane", "jobDescription": "Go engineer", "language": "French"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Dear hiring manager", decode(t, rec)["output"])
	req := hs.asker.last()
	assert.Equal(t, "aeve", req.Context)
	assert.Contains(t, req.Message, "Write the cover letter in french.")
}

func TestCoverLetterPDF_RequiresText(t *testing.T) {
	rec := newHarness(t, 10).postJSON("/api/cover-letter/pdf", map[string]string{"letter": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientKey(r, ""))
	assert.Equal(t, "0xabc", clientKey(r, " 0xABC "))
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientKey(r, ""))
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []archive.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, payload []byte) error {
	var j archive.Job
	if err := json.Unmarshal(payload, &j); err != nil {
		return err
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()
	return nil
}

func TestQuoteHTML_ArchivesArtifact(t *testing.T) {
	hs := newHarness(t, 10)
	q := &recordingQueue{}
	hs.srv.deps.Archiver = archive.NewArchiver(q, "artifacts", "")

	rec := hs.postJSON("/api/quote/html?sessionId=s-42", map[string]string{"output": quoteOutput})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, q.jobs, 1)
	job := q.jobs[0]
	assert.Equal(t, archive.KindQuote, job.Kind)
	assert.Equal(t, "s-42", job.SessionID)
	assert.Equal(t, rec.Body.Bytes(), job.Data)
	assert.True(t, strings.HasPrefix(job.Key, "artifacts/quote/"))
}
