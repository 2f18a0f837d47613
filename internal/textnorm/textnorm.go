// Package textnorm folds user-typed text into a comparable form.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	folder = cases.Fold()

	// Dotless ı and dotted İ do not decompose under NFD.
	turkish = strings.NewReplacer("ı", "i", "İ", "i", "I", "i")
)

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	s = turkish.Replace(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(folder.String(out)), " ")
}

// Letters returns the upper-case ASCII letters of s after folding.
func Letters(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
