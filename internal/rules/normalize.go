// Package rules implements keyword rule matching over normalized
// transaction labels, plus the per-user rule cache the classifier reads
// through.
package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize uppercases a label, strips diacritics and collapses runs of
// whitespace, so "Prélèvement  EDF" and "PRELEVEMENT EDF" compare equal.
func Normalize(label string) string {
	folded, _, err := transform.String(stripMarks, label)
	if err != nil {
		folded = label
	}
	return strings.Join(strings.Fields(strings.ToUpper(folded)), " ")
}
