package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// arabicUnify maps Arabic letter variants onto a single canonical form so
// that Arabic and Persian spellings of the same word collide.
var arabicUnify = map[rune]rune{
	'ي': 'ی', // ARABIC YEH -> FARSI YEH
	'ى': 'ی', // ALEF MAKSURA -> FARSI YEH
	'ك': 'ک', // ARABIC KAF -> KEHEH
	'ة': 'ه', // TEH MARBUTA -> HEH
	'أ': 'ا', // ALEF WITH HAMZA ABOVE -> ALEF
	'إ': 'ا', // ALEF WITH HAMZA BELOW -> ALEF
	'آ': 'ا', // ALEF WITH MADDA -> ALEF
}

// cyrillicUnify collapses Cyrillic variant letters.
var cyrillicUnify = map[rune]rune{
	'ё': 'е', // ё -> е
	'Ё': 'Е', // Ё -> Е
	'ґ': 'г', // ґ -> г
	'Ґ': 'Г', // Ґ -> Г
}

const (
	zwnj = '‌'
	zwj  = '‍'
)

// Normalize applies NFKC, full/half width unification, the per-script
// unification tables, and case folding. ZWNJ is preserved inside
// Arabic-script text, where it is orthographic, and dropped elsewhere.
func Normalize(text string, script string) string {
	s := norm.NFKC.String(text)
	s = width.Fold.String(s)

	keepZWNJ := script == "Arab"
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case zwnj:
			if keepZWNJ {
				b.WriteRune(r)
			}
			continue
		case zwj:
			continue
		}
		if m, ok := arabicUnify[r]; ok {
			r = m
		} else if m, ok := cyrillicUnify[r]; ok {
			r = m
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
