package resume

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/local/assistgate/internal/metrics"
	"github.com/local/assistgate/internal/pdftext"
)

// ErrInvalidPDF means the payload could not be opened as a PDF at all.
var ErrInvalidPDF = errors.New("payload is not a valid PDF")

// Conversion is the outcome of Convert.
type Conversion struct {
	Markdown string
	Pages    int
	Backend  string
	// Fallback is set when the placeholder markdown was returned; Err holds why.
	Fallback bool
	Err      error
}

// Convert validates data with pdfcpu, extracts its text and renders resume markdown.
// It never fails: unreadable PDFs produce FallbackMarkdown with Err set.
func Convert(ctx context.Context, ex pdftext.Extractor, data []byte, fileName string) Conversion {
	logger := zerolog.Ctx(ctx)

	pages, err := pdftext.PageCount(data)
	if err != nil {
		logger.Warn().Err(err).Str("file", fileName).Msg("upload rejected by pdf validation")
		metrics.IncConversion("rejected")
		return fallback(data, fileName, errors.Join(ErrInvalidPDF, err))
	}

	res, err := ex.Extract(ctx, data)
	if err != nil {
		logger.Warn().Err(err).Str("file", fileName).Int("pages", pages).Msg("pdf text extraction failed; returning fallback")
		metrics.IncConversion("fallback")
		c := fallback(data, fileName, err)
		c.Pages = pages
		return c
	}
	if res.Pages > 0 {
		pages = res.Pages
	}

	metrics.IncConversion("markdown")
	logger.Info().Str("file", fileName).Int("pages", pages).Str("backend", res.Backend).Msg("pdf converted to markdown")
	return Conversion{
		Markdown: FormatMarkdown(res.Text, fileName, pages),
		Pages:    pages,
		Backend:  res.Backend,
	}
}

func fallback(data []byte, fileName string, err error) Conversion {
	return Conversion{Markdown: FallbackMarkdown(int64(len(data)), fileName), Fallback: true, Err: err}
}
