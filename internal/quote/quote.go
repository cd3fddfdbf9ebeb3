// Package quote extracts a trade quote ("devis") from assistant output and renders it as HTML.
package quote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Quote is the JSON document an assistant embeds in a ```json fence.
type Quote struct {
	Devis *Devis `json:"devis"`
}

type Devis struct {
	Numero     Text       `json:"numero"`
	Entreprise Text       `json:"entreprise"`
	Date       Text       `json:"date"`
	Commande   Commande   `json:"commande"`
	Options    []Option   `json:"options,omitempty"`
	Conditions Conditions `json:"conditions"`
}

type Commande struct {
	Articles    []Article `json:"articles"`
	SousTotalHT Amount    `json:"sous_total_ht"`
	TVA         TVA       `json:"tva"`
	TotalTTC    Amount    `json:"total_ttc"`
}

type TVA struct {
	Taux    Amount `json:"taux"`
	Montant Amount `json:"montant"`
}

type Article struct {
	Reference    Text   `json:"reference"`
	Designation  Text   `json:"designation"`
	Quantite     Amount `json:"quantite"`
	Unite        Text   `json:"unite"`
	PrixUnitaire Amount `json:"prix_unitaire"`
	MontantHT    Amount `json:"montant_ht"`
}

type Option struct {
	Designation Text   `json:"designation"`
	Prix        Amount `json:"prix"`
	Commentaire Text   `json:"commentaire,omitempty"`
}

type Conditions struct {
	Validite Text `json:"validite"`
	Acompte  Text `json:"acompte"`
}

// Text is a label field. Assistants sometimes write "numero": 2024001 or
// "acompte": 30, so numbers and booleans are kept as their literal text.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s, err := scalar(b)
	if err != nil {
		return fmt.Errorf("text field: %w", err)
	}
	*t = Text(s)
	return nil
}

func (t Text) String() string { return string(t) }

// scalar decodes a JSON string, number, boolean or null into its text form.
func scalar(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		return "", nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		return string(b), nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return "", errors.New("must be a number or a string")
		}
		return n.String(), nil
	}
}

// Amount keeps a numeric field as written. Assistants emit both 1250.5 and "1 250,50".
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("true")) || bytes.Equal(b, []byte("false")) {
		return errors.New("amount must be a number or a string")
	}
	s, err := scalar(b)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(strings.TrimSpace(s))
	return nil
}

func (a Amount) String() string { return string(a) }

// Float parses the amount, accepting a decimal comma and thin or regular spaces.
func (a Amount) Float() (float64, bool) {
	s := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "€", "", ",", ".").Replace(string(a))
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

var fenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Detect returns the quote carried by the first ```json fence of output. Only the first
// fence is considered, and it must hold a "devis" object.
func Detect(output string) (*Quote, bool) {
	m := fenceRe.FindStringSubmatch(output)
	if m == nil {
		return nil, false
	}
	return Parse([]byte(m[1]))
}

// Parse decodes a quote document.
func Parse(data []byte) (*Quote, bool) {
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil || q.Devis == nil {
		return nil, false
	}
	return &q, true
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName is the download name, Devis_<numero>.html.
func (q *Quote) FileName() string {
	n := unsafeFileChars.ReplaceAllString(q.Devis.Numero.String(), "_")
	if n == "" {
		n = "sans_numero"
	}
	return "Devis_" + n + ".html"
}

// TotalsConsistent reports whether the article lines add up to the subtotal and the
// subtotal plus VAT to the total, within a cent. Unparseable amounts are not checked.
func (d *Devis) TotalsConsistent() bool {
	sum := 0.0
	for _, a := range d.Commande.Articles {
		v, ok := a.MontantHT.Float()
		if !ok {
			return true
		}
		sum += v
	}
	sub, ok1 := d.Commande.SousTotalHT.Float()
	tva, ok2 := d.Commande.TVA.Montant.Float()
	ttc, ok3 := d.Commande.TotalTTC.Float()
	if !ok1 || !ok2 || !ok3 {
		return true
	}
	return math.Abs(sum-sub) < 0.01 && math.Abs(sub+tva-ttc) < 0.01
}
