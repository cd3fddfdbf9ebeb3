package coverletter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

const (
	regularFont = "Helvetica"
	boldFont    = "Helvetica-Bold"
)

// HelveticaMeasure measures with the core Helvetica metrics shipped with pdfcpu.
func HelveticaMeasure(text string, size int) float64 {
	return font.TextWidth(text, regularFont, size)
}

// pdfcpu JSON page description, see pdfcpu "create" command.
type createDoc struct {
	Paper  string                `json:"paper"`
	Origin string                `json:"origin"`
	Pages  map[string]createPage `json:"pages"`
}

type createPage struct {
	Content createContent `json:"content"`
}

type createContent struct {
	Text []createText `json:"text"`
}

type createText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  createFont `json:"font"`
}

type createFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

func describe(pages []Page) createDoc {
	doc := createDoc{Paper: "A4P", Origin: "LowerLeft", Pages: make(map[string]createPage, len(pages))}
	for i, p := range pages {
		texts := make([]createText, 0, len(p.Lines))
		for _, l := range p.Lines {
			name := regularFont
			if l.Bold {
				name = boldFont
			}
			texts = append(texts, createText{Value: l.Text, Pos: [2]float64{l.X, l.Y}, Font: createFont{Name: name, Size: l.Size}})
		}
		doc.Pages[strconv.Itoa(i+1)] = createPage{Content: createContent{Text: texts}}
	}
	return doc
}

// RenderPDF writes pages as an A4 PDF.
func RenderPDF(pages []Page, w io.Writer) error {
	if len(pages) == 0 {
		return fmt.Errorf("render cover letter: no pages")
	}
	desc, err := json.Marshal(describe(pages))
	if err != nil {
		return fmt.Errorf("encode page description: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Create(nil, bytes.NewReader(desc), w, conf); err != nil {
		return fmt.Errorf("render cover letter: %w", err)
	}
	return nil
}

// Render lays out and renders l with the default geometry, returning the PDF and its page count.
// Characters the standard fonts cannot draw are replaced before layout.
func Render(l Letter, w io.Writer) (int, error) {
	var name, body int
	l.Name, name = ToWinAnsi(l.Name)
	l.Body, body = ToWinAnsi(l.Body)
	if name+body > 0 {
		log.Warn().Int("replaced", name+body).Msg("cover letter has characters outside WinAnsi; substituted")
	}
	pages := Layout(l, DefaultOptions(), HelveticaMeasure)
	return len(pages), RenderPDF(pages, w)
}
