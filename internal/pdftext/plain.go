package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// PlainExtractor reads text with the pure-Go ledongthuc/pdf reader. It handles fewer
// encodings than MuPDF but needs no native library.
type PlainExtractor struct{}

func NewPlainExtractor() *PlainExtractor { return &PlainExtractor{} }

func (p *PlainExtractor) Name() string { return "plain" }

func (p *PlainExtractor) Extract(ctx context.Context, data []byte) (res Result, err error) {
	// the reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("failed to open PDF: %w", err)
	}

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Failed to extract text from page")
			continue
		}
		b.WriteString(strings.TrimRight(text, " \n"))
		b.WriteString("\n\n")
	}
	return Result{Text: b.String(), Pages: n}, nil
}
