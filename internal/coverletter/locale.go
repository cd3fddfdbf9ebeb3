package coverletter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Locale carries the strings printed around the letter body.
type Locale struct {
	Language  string
	Title     string
	PageLabel string // format with page index and page count
	FileName  string
	months    [12]string
	dateFmt   func(day int, month string, year int) string
}

var locales = map[string]Locale{
	"english": {
		Language:  "english",
		Title:     "Cover Letter",
		PageLabel: "Page %d / %d",
		FileName:  "cover-letter",
		months:    [12]string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
		dateFmt:   func(d int, m string, y int) string { return fmt.Sprintf("%s %d, %d", m, d, y) },
	},
	"french": {
		Language:  "french",
		Title:     "Lettre de motivation",
		PageLabel: "Page %d / %d",
		FileName:  "lettre-de-motivation",
		months:    [12]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet", "août", "septembre", "octobre", "novembre", "décembre"},
		dateFmt:   func(d int, m string, y int) string { return fmt.Sprintf("%d %s %d", d, m, y) },
	},
	"spanish": {
		Language:  "spanish",
		Title:     "Carta de presentación",
		PageLabel: "Página %d / %d",
		FileName:  "carta-de-presentacion",
		months:    [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
		dateFmt:   func(d int, m string, y int) string { return fmt.Sprintf("%d de %s de %d", d, m, y) },
	},
}

// LocaleFor falls back to english for unknown languages.
func LocaleFor(language string) Locale {
	if l, ok := locales[strings.ToLower(strings.TrimSpace(language))]; ok {
		return l
	}
	return locales[DefaultLanguage]
}

func (l Locale) Date(t time.Time) string {
	return l.dateFmt(t.Day(), l.months[t.Month()-1], t.Year())
}

func (l Locale) Footer(page, total int) string {
	return fmt.Sprintf(l.PageLabel, page, total)
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// Download returns the attachment name, suffixed with the applicant's name when given.
func (l Locale) Download(name string) string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		return l.FileName + ".pdf"
	}
	return l.FileName + "-" + slug + ".pdf"
}
