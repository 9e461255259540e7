package analyzer

import (
	"unicode"
	"unicode/utf8"
)

// stopwords is the index-time stopword list. It is consulted only when
// Config.StripStopwords is set; queries always keep every term so that
// navigational queries like "the who" stay precise.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"el": {}, "la": {}, "de": {}, "le": {}, "les": {}, "und": {},
	"der": {}, "die": {}, "das": {}, "et": {}, "un": {}, "une": {},
}

// tokenize splits normalized text on Unicode whitespace and punctuation.
// CJK spans produce no lexical tokens; they are covered by the n-gram
// index. The second return reports that every letter-bearing span was CJK.
func tokenize(normalized string, cfg Config) ([]Token, bool) {
	tokens := make([]Token, 0, 8)
	pos := 0
	sawLexical := false
	sawCJK := false

	var current []rune
	flush := func() {
		if len(current) == 0 {
			return
		}
		term := string(current)
		current = current[:0]
		if utf8.RuneCountInString(term) > cfg.MaxTokenLength {
			return
		}
		if cfg.StripStopwords {
			if _, stop := stopwords[term]; stop {
				return
			}
		}
		sawLexical = true
		tokens = append(tokens, Token{Term: term, Position: pos})
		pos++
	}

	for _, r := range normalized {
		switch {
		case isCJK(r):
			flush()
			sawCJK = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current = append(current, r)
		case r == zwnj:
			current = append(current, r)
		default:
			flush()
		}
	}
	flush()

	return tokens, sawCJK && !sawLexical
}
