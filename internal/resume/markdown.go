// Package resume turns raw text extracted from a resume PDF into sectioned markdown.
package resume

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Section is a resume section recognised by the keyword heuristic.
type Section string

const (
	Contact    Section = "Contact"
	Experience Section = "Experience"
	Education  Section = "Education"
	Skills     Section = "Skills"
	Other      Section = "Other"
)

// Order is the order sections are emitted in.
var Order = []Section{Contact, Experience, Education, Skills, Other}

// Document is a classified resume.
type Document struct {
	FileName string
	Pages    int
	Sections map[Section][]string
}

// Lines returns the lines collected for s.
func (d Document) Lines(s Section) []string { return d.Sections[s] }

var (
	crlfRe      = regexp.MustCompile(`\r\n|\r`)
	newlinesRe  = regexp.MustCompile(`\n{3,}`)
	spacesRe    = regexp.MustCompile(`[\s\v\x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]{2,}`)
	skillSepRe  = regexp.MustCompile(`[,•|/]`)
	dateRangeRe = regexp.MustCompile(`(?i)\b(19|20)\d{2}\s*[-–—]\s*(19|20)\d{2}|présent|present|actuel|current|now\b`)
)

// header keywords, checked against the upper-cased line in this order
var headerKeywords = []struct {
	section  Section
	keywords []string
}{
	{Experience, []string{"EXPÉRIENCE", "EXPERIENCE", "PARCOURS", "PROFESSIONNEL"}},
	{Education, []string{"ÉDUCATION", "EDUCATION", "FORMATION", "DIPLÔME", "DIPLOME"}},
	{Skills, []string{"COMPÉTENCE", "COMPETENCE", "SKILL", "TECHNO", "TECHNIQUE"}},
	{Contact, []string{"CONTACT", "PROFIL"}},
}

// Normalize unifies line endings and collapses runs of blank lines and whitespace.
func Normalize(raw string) string {
	s := crlfRe.ReplaceAllString(raw, "\n")
	s = newlinesRe.ReplaceAllString(s, "\n\n")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Classify assigns every non-empty line of text to a section. Header lines switch the
// current section and are dropped.
func Classify(text, fileName string, pages int) Document {
	doc := Document{FileName: fileName, Pages: pages, Sections: map[Section][]string{}}
	current := Contact
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if next, ok := headerSection(line); ok {
			current = next
			continue
		}
		doc.Sections[current] = append(doc.Sections[current], line)
	}
	return doc
}

// headerSection reports whether line looks like a section header.
func headerSection(line string) (Section, bool) {
	n := utf8.RuneCountInString(line)
	if n <= 3 || n >= 50 {
		return "", false
	}
	upper := strings.ToUpper(line)
	for _, h := range headerKeywords {
		for _, kw := range h.keywords {
			if strings.Contains(upper, kw) {
				return h.section, true
			}
		}
	}
	if strings.Contains(line, "@") && n < 40 {
		return Contact, true
	}
	return "", false
}

// Markdown renders doc. Empty sections are omitted.
func Markdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Resume: %s\n\n", doc.FileName)
	plural := ""
	if doc.Pages > 1 {
		plural = "s"
	}
	fmt.Fprintf(&b, "*PDF document with %d page%s successfully extracted.*\n\n", doc.Pages, plural)

	for _, s := range Order {
		lines := doc.Sections[s]
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", s)
		switch s {
		case Skills:
			b.WriteString(skillsBody(lines))
		case Experience, Education:
			b.WriteString(entriesBody(lines))
		default:
			b.WriteString(strings.Join(lines, "\n"))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func skillsBody(lines []string) string {
	var items []string
	for _, p := range skillSepRe.Split(strings.Join(lines, " "), -1) {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	if len(items) <= 1 {
		return strings.Join(lines, "\n")
	}
	for i, it := range items {
		items[i] = "- " + it
	}
	return strings.Join(items, "\n")
}

// entriesBody starts a new "###" entry at every line carrying a date range or an
// ongoing marker.
func entriesBody(lines []string) string {
	var b strings.Builder
	inEntry := false
	for _, line := range lines {
		if IsEntryHeading(line) {
			if inEntry {
				b.WriteString("\n\n")
			}
			b.WriteString("### " + line + "\n")
			inEntry = true
			continue
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// IsEntryHeading reports whether line carries a year range like "2018 - 2020" or an
// ongoing marker such as "present".
func IsEntryHeading(line string) bool { return dateRangeRe.MatchString(line) }

// FormatMarkdown normalizes raw extracted text, classifies it and renders markdown.
func FormatMarkdown(raw, fileName string, pages int) string {
	return Markdown(Classify(Normalize(raw), fileName, pages))
}

// FallbackMarkdown is returned when a PDF was received but its text could not be
// extracted.
func FallbackMarkdown(size int64, fileName string) string {
	kb := int64(math.Round(float64(size) / 1024))
	// the trailing space after "parsed." is part of the published text
	return fmt.Sprintf("# Resume: %s\n\n"+
		"## Note\n"+
		"Your PDF resume was received (%d KB) but could not be fully parsed. \n"+
		"The cover letter will be generated based on the information you provide in the job description.\n\n"+
		"For better results, consider providing key resume highlights in your job description field,\n"+
		"or uploading your resume in text (.txt) or markdown (.md) format.\n", fileName, kb)
}
