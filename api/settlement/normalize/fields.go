package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, drops every whitespace rune and strips accents, so
// "Fecha Operación" and "fechaoperacion" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	var b strings.Builder
	b.Grow(len(out))
	for _, r := range out {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Record is one data row keyed by the header row of its sheet. Header order
// is kept because partial matches are resolved in column order.
type Record struct {
	headers []string
	folded  []string
	values  map[string]string
}

// NewRecord pairs header cells with row cells. Missing trailing cells read
// as empty; blank and repeated headers are ignored.
func NewRecord(headers, cells []string) Record {
	rec := Record{values: make(map[string]string, len(headers))}
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := rec.values[h]; dup {
			continue
		}
		v := ""
		if i < len(cells) {
			v = strings.TrimSpace(cells[i])
		}
		rec.headers = append(rec.headers, h)
		rec.folded = append(rec.folded, Fold(h))
		rec.values[h] = v
	}
	return rec
}

// Map copies the record into a plain map, used to keep the raw row on a
// line item for diagnostics.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// Resolve finds the value of the first candidate spelling present in rec.
// For each candidate an exact folded key wins over a key that merely
// contains it; among containing keys the leftmost column wins.
func Resolve(rec Record, candidates []string) (string, bool) {
	for _, c := range candidates {
		fc := Fold(c)
		if fc == "" {
			continue
		}
		for i, k := range rec.folded {
			if k == fc {
				return rec.values[rec.headers[i]], true
			}
		}
		for i, k := range rec.folded {
			if strings.Contains(k, fc) {
				return rec.values[rec.headers[i]], true
			}
		}
	}
	return "", false
}

// Field names a logical column of a provider layout.
type Field string

const (
	FieldTerminal  Field = "terminal"
	FieldDate      Field = "date"
	FieldAmount    Field = "amount"
	FieldMethod    Field = "method"
	FieldCount     Field = "count"
	FieldReturns   Field = "returns"
	FieldExtraCash Field = "extra_cash"
	FieldExtraCard Field = "extra_card"
)

// FieldTable declares the header spellings accepted for each field, in
// priority order.
type FieldTable map[Field][]string

// Lookup resolves field in rec using the table's spellings.
func (t FieldTable) Lookup(rec Record, field Field) (string, bool) {
	candidates, ok := t[field]
	if !ok {
		return "", false
	}
	return Resolve(rec, candidates)
}
