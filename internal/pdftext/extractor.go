// Package pdftext extracts raw text from PDF uploads.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// Result is the raw text of a document and its page count.
type Result struct {
	Text    string
	Pages   int
	Backend string
}

// Extractor turns PDF bytes into raw text.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, data []byte) (Result, error)
}

// DefaultMinChars is used when a non-positive threshold is passed to Probe.
const DefaultMinChars = 32

// ErrNoText is returned when no backend produced enough text, e.g. for scanned PDFs.
var ErrNoText = errors.New("pdf has no extractable text")

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Probe reports whether res carries at least minChars non-whitespace characters.
func Probe(res Result, minChars int) bool {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return len([]rune(whitespaceRegex.ReplaceAllString(res.Text, ""))) >= minChars
}

// Chain tries each extractor in order and returns the first result that passes Probe.
type Chain struct {
	Extractors []Extractor
	MinChars   int
}

// New builds a chain from backend names ("fitz", "plain"). Unknown names are skipped.
func New(names []string, minChars int) *Chain {
	c := &Chain{MinChars: minChars}
	for _, n := range names {
		switch n {
		case "fitz":
			c.Extractors = append(c.Extractors, NewFitzExtractor())
		case "plain":
			c.Extractors = append(c.Extractors, NewPlainExtractor())
		default:
			log.Warn().Str("backend", n).Msg("unknown pdf text backend; skipping")
		}
	}
	return c
}

func (c *Chain) Name() string { return "chain" }

// Extract runs the chain. All backend errors are joined when none succeeds.
func (c *Chain) Extract(ctx context.Context, data []byte) (Result, error) {
	if len(c.Extractors) == 0 {
		return Result{}, errors.New("no pdf text backend configured")
	}
	var errs []error
	for _, ex := range c.Extractors {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := ex.Extract(ctx, data)
		if err != nil {
			log.Warn().Err(err).Str("backend", ex.Name()).Msg("pdf text extraction failed")
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
			continue
		}
		if !Probe(res, c.MinChars) {
			log.Debug().Str("backend", ex.Name()).Int("chars", len(res.Text)).Msg("extracted text below threshold")
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), ErrNoText))
			continue
		}
		res.Backend = ex.Name()
		return res, nil
	}
	return Result{}, errors.Join(errs...)
}

// PageCount validates data as a PDF and returns its number of pages.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}
