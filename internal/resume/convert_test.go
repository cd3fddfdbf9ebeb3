package resume

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/assistgate/internal/coverletter"
	"github.com/local/assistgate/internal/pdftext"
)

type stubExtractor struct {
	called bool
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) Extract(ctx context.Context, data []byte) (pdftext.Result, error) {
	s.called = true
	return pdftext.Result{}, errors.New("unexpected call")
}

func TestConvert_InvalidPDFFallsBackWithoutExtracting(t *testing.T) {
	ex := &stubExtractor{}
	c := Convert(context.Background(), ex, []byte("plain words, not a pdf"), "cv.pdf")
	assert.True(t, c.Fallback)
	assert.ErrorIs(t, c.Err, ErrInvalidPDF)
	assert.False(t, ex.called)
	assert.Contains(t, c.Markdown, "# Resume: cv.pdf")
	assert.Contains(t, c.Markdown, "(0 KB)")
}

func renderPDF(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := coverletter.Render(coverletter.Letter{Name: name, Body: body, Locale: coverletter.LocaleFor("english")}, &buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestConvert_TextPDF(t *testing.T) {
	data := renderPDF(t, "Jane Doe",
		"EXPERIENCE\n\nSenior Engineer at Acme 2019 - 2023\n\nEDUCATION\n\nMSc Computer Science 2015 - 2017")
	ex := pdftext.New([]string{"fitz", "plain"}, 0)

	c := Convert(context.Background(), ex, data, "jane.pdf")
	require.False(t, c.Fallback, "%v", c.Err)
	assert.Equal(t, 1, c.Pages)
	assert.Equal(t, "fitz", c.Backend)
	assert.True(t, strings.HasPrefix(c.Markdown, "# Resume: jane.pdf\n\n*PDF document with 1 page successfully extracted.*\n\n"))
	assert.Contains(t, c.Markdown, "## Contact\n")
	assert.Contains(t, c.Markdown, "Jane Doe")
	assert.Contains(t, c.Markdown, "## Experience\n### Senior Engineer at Acme 2019 - 2023")
	assert.Contains(t, c.Markdown, "## Education\n### MSc Computer Science 2015 - 2017")
}

// A readable PDF with almost no text is treated like a scan: the placeholder is
// returned rather than a header-only document.
func TestConvert_ShortTextPDFFallsBack(t *testing.T) {
	data := renderPDF(t, "", "Hi")
	ex := pdftext.New([]string{"fitz", "plain"}, 0)

	c := Convert(context.Background(), ex, data, "short.pdf")
	assert.True(t, c.Fallback)
	assert.ErrorIs(t, c.Err, pdftext.ErrNoText)
	assert.NotErrorIs(t, c.Err, ErrInvalidPDF)
	assert.Equal(t, 1, c.Pages)
	assert.Equal(t, FallbackMarkdown(int64(len(data)), "short.pdf"), c.Markdown)
}
