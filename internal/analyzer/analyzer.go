// Package analyzer converts raw text in any language or script into a
// deterministic token stream plus detected language, script, and confidence.
// The same analyzer runs at index build time and at query time, so its
// output is a pure function of (text, config).
package analyzer

import (
	"unicode/utf8"

	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
)

// MinConfidence is the language-detection threshold below which the
// analyzer reports "und".
const MinConfidence = 0.35

// Token is a single normalised term and its position in the token stream.
type Token struct {
	Term     string
	Position int
}

// Result is the full output of Analyze.
type Result struct {
	Tokens     []Token
	Normalized string // the fully normalized input, as used for cache keys
	Language   string // ISO 639-1, or "und"
	Script     string // ISO 15924
	Confidence float64
	// CJKOnly reports that every retrievable span was CJK, so token-level
	// retrieval has nothing to work with and the n-gram index carries the
	// query alone.
	CJKOnly bool
}

// Config controls the analyzer. The zero value is the serve-time analyzer:
// stopwords are never stripped from queries.
type Config struct {
	// StripStopwords removes stopwords from the token stream. Only the
	// index builder sets this; documents indexed with it carry a metadata
	// flag so readers know positions were compacted.
	StripStopwords bool
	MaxTokenLength int
}

// Analyzer is safe for concurrent use.
type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	if cfg.MaxTokenLength <= 0 {
		cfg.MaxTokenLength = 256
	}
	return &Analyzer{cfg: cfg}
}

// Analyze normalizes, tokenizes, and classifies text. It fails only on
// invalid UTF-8; any other input produces best-effort tokens, falling back
// to language "und".
func (a *Analyzer) Analyze(text string) (Result, error) {
	if !utf8.ValidString(text) {
		return Result{}, apperrors.New(apperrors.ErrInputInvalid, "text is not valid UTF-8")
	}

	script := DetectScript(text)
	normalized := Normalize(text, script)
	tokens, cjkOnly := tokenize(normalized, a.cfg)

	lang, confidence := DetectLanguage(normalized, script)
	if confidence < MinConfidence {
		lang = "und"
	}

	return Result{
		Tokens:     tokens,
		Normalized: normalized,
		Language:   lang,
		Script:     script,
		Confidence: confidence,
		CJKOnly:    cjkOnly,
	}, nil
}

// NGrams returns the character n-grams (nMin..nMax) of the normalized text.
// Grams never cross whitespace boundaries.
func (a *Analyzer) NGrams(text string, nMin, nMax int) []string {
	script := DetectScript(text)
	return ngrams(Normalize(text, script), nMin, nMax)
}
