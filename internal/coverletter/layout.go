package coverletter

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Options is the page geometry in PDF points.
type Options struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontSize   int
	TitleSize  int
	Leading    float64
}

// DefaultOptions is A4 portrait with Helvetica 11.
func DefaultOptions() Options {
	return Options{PageWidth: 595, PageHeight: 842, Margin: 56, FontSize: 11, TitleSize: 16, Leading: 15}
}

// MeasureFunc returns the width of text at size in points.
type MeasureFunc func(text string, size int) float64

// Letter is a generated letter ready to be laid out.
type Letter struct {
	Name   string
	Body   string
	Date   time.Time
	Locale Locale
}

// Line is one positioned run of text; Y is the baseline from the bottom edge.
type Line struct {
	Text string
	X    float64
	Y    float64
	Size int
	Bold bool
}

type Page struct {
	Lines []Line
}

var (
	bulletRe   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	headingRe  = regexp.MustCompile(`^#{1,6}\s+`)
	emphasisRe = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
)

const bullet = "• "

// block is a paragraph or a bullet item after markdown cleanup.
type block struct {
	text   string
	bullet bool
	gap    bool // blank line before
}

func parseBody(body string) []block {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []block
	var para []string
	gap := false
	flush := func() {
		if len(para) > 0 {
			out = append(out, block{text: strings.Join(para, " "), gap: gap})
			para = nil
			gap = false
		}
	}
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			flush()
			if len(out) > 0 {
				gap = true
			}
			continue
		}
		line = headingRe.ReplaceAllString(line, "")
		line = emphasisRe.ReplaceAllString(line, "$1$2")
		if loc := bulletRe.FindStringIndex(line); loc != nil {
			flush()
			out = append(out, block{text: strings.TrimSpace(line[loc[1]:]), bullet: true, gap: gap})
			gap = false
			continue
		}
		para = append(para, line)
	}
	flush()
	return out
}

// Wrap breaks text into lines no wider than width. Words wider than width are split.
func Wrap(text string, width float64, size int, measure MeasureFunc) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := ""
	for _, w := range words {
		for measure(w, size) > width && utf8.RuneCountInString(w) > 1 {
			head, tail := splitToWidth(w, width, size, measure)
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			lines = append(lines, head)
			w = tail
		}
		if cur == "" {
			cur = w
			continue
		}
		if candidate := cur + " " + w; measure(candidate, size) <= width {
			cur = candidate
		} else {
			lines = append(lines, cur)
			cur = w
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func splitToWidth(w string, width float64, size int, measure MeasureFunc) (string, string) {
	runes := []rune(w)
	n := 1
	for n < len(runes) && measure(string(runes[:n+1]), size) <= width {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

// Layout positions the letter on pages and stamps the localized footer on each one.
func Layout(l Letter, opts Options, measure MeasureFunc) []Page {
	top := opts.PageHeight - opts.Margin - float64(opts.FontSize)
	bottom := opts.Margin + opts.Leading
	width := opts.PageWidth - 2*opts.Margin

	pages := []Page{{}}
	y := top
	emit := func(text string, x float64, size int, bold bool) {
		if y < bottom {
			pages = append(pages, Page{})
			y = top
		}
		p := &pages[len(pages)-1]
		p.Lines = append(p.Lines, Line{Text: text, X: x, Y: y, Size: size, Bold: bold})
		y -= opts.Leading
	}
	skip := func() {
		if y < top {
			y -= opts.Leading
		}
	}

	if name := strings.TrimSpace(l.Name); name != "" {
		emit(name, opts.Margin, opts.FontSize, true)
	}
	if !l.Date.IsZero() {
		date := l.Locale.Date(l.Date)
		emit(date, opts.PageWidth-opts.Margin-measure(date, opts.FontSize), opts.FontSize, false)
	}
	skip()
	y -= float64(opts.TitleSize - opts.FontSize)
	emit(l.Locale.Title, opts.Margin, opts.TitleSize, true)
	skip()

	indent := measure(bullet, opts.FontSize)
	for i, b := range parseBody(l.Body) {
		if i > 0 && (b.gap || !b.bullet) {
			skip()
		}
		if !b.bullet {
			for _, line := range Wrap(b.text, width, opts.FontSize, measure) {
				emit(line, opts.Margin, opts.FontSize, false)
			}
			continue
		}
		for j, line := range Wrap(b.text, width-indent, opts.FontSize, measure) {
			if j == 0 {
				emit(bullet+line, opts.Margin, opts.FontSize, false)
			} else {
				emit(line, opts.Margin+indent, opts.FontSize, false)
			}
		}
	}

	for i := range pages {
		footer := l.Locale.Footer(i+1, len(pages))
		pages[i].Lines = append(pages[i].Lines, Line{
			Text: footer,
			X:    (opts.PageWidth - measure(footer, opts.FontSize-2)) / 2,
			Y:    opts.Margin / 2,
			Size: opts.FontSize - 2,
		})
	}
	return pages
}
