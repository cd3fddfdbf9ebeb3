package pdftext

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// FitzExtractor uses go-fitz (MuPDF) to read text from in-memory PDFs.
type FitzExtractor struct{}

// NewFitzExtractor creates a new go-fitz based extractor
func NewFitzExtractor() *FitzExtractor {
	return &FitzExtractor{}
}

func (g *FitzExtractor) Name() string { return "fitz" }

// Extract returns the text of every page, pages separated by a blank line.
func (g *FitzExtractor) Extract(ctx context.Context, data []byte) (Result, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var result strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		text, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("Failed to extract text from page")
			continue
		}
		result.WriteString(strings.TrimRight(text, " \n"))
		result.WriteString("\n\n")
	}

	log.Debug().Int("pages", doc.NumPage()).Int("chars", result.Len()).Msg("Extracted text from PDF")
	return Result{Text: result.String(), Pages: doc.NumPage()}, nil
}
