package quote

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/devis.html
var templatesFS embed.FS

var devisTpl = template.Must(template.ParseFS(templatesFS, "templates/devis.html"))

// Issuer is printed in the footer of every quote.
const Issuer = "Batappli IA Alpha"

// RenderHTML writes q as a standalone HTML page. Every value is escaped.
func RenderHTML(q *Quote, w io.Writer) error {
	if q == nil || q.Devis == nil {
		return fmt.Errorf("render quote: missing devis")
	}
	data := struct {
		*Devis
		Issuer string
	}{q.Devis, Issuer}
	if err := devisTpl.Execute(w, data); err != nil {
		return fmt.Errorf("render quote %s: %w", q.Devis.Numero, err)
	}
	return nil
}
