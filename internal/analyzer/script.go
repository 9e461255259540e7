package analyzer

import "unicode"

// scriptRanges maps ISO 15924 codes to the Unicode ranges we classify.
// Order matters only for documentation; detection counts codepoints.
var scriptRanges = []struct {
	code  string
	table *unicode.RangeTable
}{
	{"Latn", unicode.Latin},
	{"Cyrl", unicode.Cyrillic},
	{"Arab", unicode.Arabic},
	{"Hani", unicode.Han},
	{"Hira", unicode.Hiragana},
	{"Kana", unicode.Katakana},
	{"Hang", unicode.Hangul},
	{"Deva", unicode.Devanagari},
	{"Grek", unicode.Greek},
	{"Hebr", unicode.Hebrew},
	{"Thai", unicode.Thai},
	{"Taml", unicode.Tamil},
	{"Beng", unicode.Bengali},
	{"Geor", unicode.Georgian},
	{"Armn", unicode.Armenian},
}

// DetectScript returns the dominant ISO 15924 script of text, or "Zyyy"
// (common) when no letters are found. Japanese kana outweighs Han for texts
// mixing both, so ja classifies as Hira/Kana rather than Hani.
func DetectScript(text string) string {
	counts := make(map[string]int, 4)
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		for _, sr := range scriptRanges {
			if unicode.Is(sr.table, r) {
				counts[sr.code]++
				break
			}
		}
	}
	if len(counts) == 0 {
		return "Zyyy"
	}

	// Kana presence marks Japanese text even when Han dominates by count.
	if counts["Hira"]+counts["Kana"] > 0 && counts["Hani"] > 0 {
		if counts["Hira"] >= counts["Kana"] {
			return "Hira"
		}
		return "Kana"
	}

	best, bestCount := "Zyyy", 0
	for code, n := range counts {
		if n > bestCount || (n == bestCount && code < best) {
			best, bestCount = code, n
		}
	}
	return best
}

// isCJK reports whether r belongs to a script tokenized by n-grams only.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
