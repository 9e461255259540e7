package analyzer

import (
	"regexp"
	"strings"
)

// Intent is the coarse query intent used by the intent-alignment feature.
type Intent string

const (
	IntentUnknown  Intent = "unknown"
	IntentBook     Intent = "book"
	IntentProduct  Intent = "product"
	IntentArticle  Intent = "article"
	IntentDownload Intent = "download"
)

var intentCues = map[string]Intent{
	"isbn":     IntentBook,
	"book":     IntentBook,
	"author":   IntentBook,
	"novel":    IntentBook,
	"buy":      IntentProduct,
	"price":    IntentProduct,
	"cheap":    IntentProduct,
	"review":   IntentProduct,
	"news":     IntentArticle,
	"article":  IntentArticle,
	"today":    IntentArticle,
	"download": IntentDownload,
	"pdf":      IntentDownload,
	"apk":      IntentDownload,
	"torrent":  IntentDownload,
}

// isbnPattern matches ISBN-10/13 with optional hyphens or spaces.
var isbnPattern = regexp.MustCompile(`\b(?:97[89][- ]?)?\d{1,5}[- ]?\d{1,7}[- ]?\d{1,7}[- ]?[\dxX]\b`)

// DetectIntent classifies a query by static cue words. Unknown intent maps
// to a neutral alignment downstream.
func DetectIntent(tokens []Token) Intent {
	for _, t := range tokens {
		if in, ok := intentCues[t.Term]; ok {
			return in
		}
	}
	return IntentUnknown
}

// ExtractISBN returns the normalized (digits-only) ISBN in the query, or "".
func ExtractISBN(query string) string {
	m := isbnPattern.FindString(query)
	if m == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range m {
		if r >= '0' && r <= '9' || r == 'x' || r == 'X' {
			b.WriteRune(r)
		}
	}
	digits := strings.ToUpper(b.String())
	if len(digits) != 10 && len(digits) != 13 {
		return ""
	}
	return digits
}
