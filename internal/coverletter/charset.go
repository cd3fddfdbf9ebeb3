package coverletter

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// winAnsiExtra are the code points WinAnsiEncoding places in 0x80-0x9F.
var winAnsiExtra = map[rune]bool{
	'€': true, '‚': true, 'ƒ': true, '„': true, '…': true, '†': true, '‡': true,
	'ˆ': true, '‰': true, 'Š': true, '‹': true, 'Œ': true, 'Ž': true, '‘': true,
	'’': true, '“': true, '”': true, '•': true, '–': true, '—': true, '˜': true,
	'™': true, 'š': true, '›': true, 'œ': true, 'ž': true, 'Ÿ': true,
}

var substitutes = map[rune]string{
	'→': "->", '←': "<-", '⇒': "=>", '↔': "<->",
	'≤': "<=", '≥': ">=", '≠': "!=", '≈': "~",
	'−': "-", '‐': "-", '‑': "-", '‒': "-", '―': "-",
	'′': "'", '″': "\"", '‛': "'", '‟': "\"",
	'✓': "v", '✔': "v", '✗': "x", '✘': "x",
	'▪': "•", '◦': "•", '●': "•", '‣': "•", '∙': "•",
	'Ł': "L", 'ł': "l", 'Đ': "D", 'đ': "d", 'Ħ': "H", 'ħ': "h", 'ı': "i",
	'\u200b': "", '\u200c': "", '\u200d': "", '\ufeff': "",
	'\u2002': " ", '\u2003': " ", '\u2009': " ", '\u202f': " ",
}

func winAnsi(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return true
	case r >= 0x20 && r < 0x7F:
		return true
	case r >= 0xA0 && r <= 0xFF:
		return true
	}
	return winAnsiExtra[r]
}

// ToWinAnsi rewrites s so every rune can be drawn with the standard Helvetica fonts:
// known symbols get an ASCII stand-in, accented letters lose the accent the encoding
// lacks, and anything else becomes "?". It also reports how many runes were replaced.
func ToWinAnsi(s string) (string, int) {
	var (
		b        strings.Builder
		replaced int
	)
	for _, r := range s {
		if winAnsi(r) {
			b.WriteRune(r)
			continue
		}
		replaced++
		if sub, ok := substitutes[r]; ok {
			b.WriteString(sub)
			continue
		}
		if base, ok := stripMarks(r); ok {
			b.WriteString(base)
			continue
		}
		b.WriteByte('?')
	}
	return b.String(), replaced
}

// stripMarks decomposes r and drops combining marks, e.g. "ă" -> "a".
func stripMarks(r rune) (string, bool) {
	var b strings.Builder
	for _, d := range norm.NFD.String(string(r)) {
		if unicode.Is(unicode.Mn, d) {
			continue
		}
		if !winAnsi(d) {
			return "", false
		}
		b.WriteRune(d)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
