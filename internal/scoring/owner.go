package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeOwner folds an owner name for matching across buildings: Unicode
// upper case, punctuation removed, whitespace collapsed. Entity suffixes such
// as LLC or INC are kept, so "Acme, L.L.C." and "ACME LLC" match.
func NormalizeOwner(name string) string {
	// Casers carry state; one per call keeps this safe for concurrent use.
	upper := cases.Upper(language.Und).String(name)

	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// "A.B." becomes "AB" while "A-B" keeps a word break.
			if r == '-' || r == '/' || r == '&' {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// OwnerIndex counts buildings per normalised owner.
type OwnerIndex map[string]int

// NewOwnerIndex builds an index from raw owner names.
func NewOwnerIndex(names []string) OwnerIndex {
	idx := make(OwnerIndex, len(names))
	for _, n := range names {
		if key := NormalizeOwner(n); key != "" {
			idx[key]++
		}
	}
	return idx
}

// Count returns how many buildings share name's normalised form.
func (idx OwnerIndex) Count(name string) int {
	key := NormalizeOwner(name)
	if key == "" {
		return 0
	}
	return idx[key]
}
