package fusion

import (
	"math"
	"time"

	"github.com/omnidex-search/omnidex/internal/analyzer"
	"github.com/omnidex-search/omnidex/internal/feature"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/internal/retriever"
)

const (
	freshnessHalfLifeDays = 180
	staleVerticalAgeDays  = 365
)

// Components is the per-signal breakdown returned on debug requests. Every
// component is already normalized to [0,1] before weighting.
type Components struct {
	BM25            float64 `json:"bm25"`
	NGramCoverage   float64 `json:"ngramCoverage,omitempty"`
	EmbSim          float64 `json:"embSim"`
	Hostrank        float64 `json:"hostrank"`
	AnchorMatch     float64 `json:"anchorMatch"`
	StructuredBoost float64 `json:"structuredBoost"`
	Freshness       float64 `json:"freshness"`
	URLQuality      float64 `json:"urlQuality"`
	Spamness        float64 `json:"spamness"`
	IntentAlign     float64 `json:"intentAlign"`
}

// Scored is a candidate with its fused final score.
type Scored struct {
	Candidate  retriever.Candidate
	Features   feature.Features
	Final      float64
	Components Components
}

// Query carries the per-query context fusion needs beyond the candidates.
type Query struct {
	TermCount int
	Vector    []float32 // query embedding; nil degrades embSim to 0
	Intent    analyzer.Intent
	ISBN      string // digits-only isbn extracted from the query, if any
	Now       time.Time
}

// Fuser applies the weight bundle to candidates.
type Fuser struct {
	weights *Weights
}

func NewFuser(w *Weights) *Fuser {
	if w == nil {
		w = DefaultWeights()
	}
	return &Fuser{weights: w}
}

func (f *Fuser) Weights() *Weights { return f.weights }

// Fuse scores every candidate. feats must align with cands index-for-index;
// a nil feats slice means the warm store was unreachable and every document
// degrades to its index-resident signals.
func (f *Fuser) Fuse(cands []retriever.Candidate, feats []feature.Features, q Query) []Scored {
	if len(cands) == 0 {
		return nil
	}
	minBM, maxBM := cands[0].BM25, cands[0].BM25
	for _, c := range cands[1:] {
		if c.BM25 < minBM {
			minBM = c.BM25
		}
		if c.BM25 > maxBM {
			maxBM = c.BM25
		}
	}

	out := make([]Scored, len(cands))
	for i, c := range cands {
		var ft feature.Features
		if i < len(feats) {
			ft = feats[i]
		}
		comp := f.components(c, ft, q, minBM, maxBM)
		w := f.weights
		final := w.BM25*comp.BM25 +
			w.EmbSim*comp.EmbSim +
			w.Hostrank*comp.Hostrank +
			w.AnchorMatch*comp.AnchorMatch +
			w.StructuredBoost*comp.StructuredBoost +
			w.Freshness*comp.Freshness +
			w.URLQuality*comp.URLQuality -
			w.Spamness*comp.Spamness +
			w.IntentAlign*comp.IntentAlign
		out[i] = Scored{Candidate: c, Features: ft, Final: final, Components: comp}
	}
	return out
}

func (f *Fuser) components(c retriever.Candidate, ft feature.Features, q Query, minBM, maxBM float64) Components {
	comp := Components{}

	// Min-max over the candidate set; a degenerate set where every score
	// is equal normalizes to 1 so lexical relevance still counts.
	switch {
	case maxBM > minBM:
		comp.BM25 = (c.BM25 - minBM) / (maxBM - minBM)
	case c.BM25 > 0:
		comp.BM25 = 1
	}
	// Pure n-gram candidates have no lexical score; coverage stands in for
	// bm25N under the same weight, and is reported separately so the debug
	// breakdown shows which signal actually drove the score.
	comp.NGramCoverage = c.NGramCoverage
	if c.BM25 == 0 && c.NGramCoverage > 0 {
		comp.BM25 = c.NGramCoverage
	}

	comp.EmbSim = embeddingSimilarity(q.Vector, ft.Embedding)

	comp.Hostrank = pick(ft.Found, ft.Hostrank, float64(c.Doc.Signals.Hostrank))
	comp.URLQuality = pick(ft.Found, ft.URLQuality, float64(c.Doc.Signals.URLQuality))
	comp.Spamness = pick(ft.Found, ft.Spamness, float64(c.Doc.Signals.Spamness))

	if q.TermCount > 0 {
		comp.AnchorMatch = clamp01(float64(c.AnchorTerms) / float64(q.TermCount))
	}
	comp.StructuredBoost = structuredBoost(c.Doc, q)
	comp.Freshness = freshnessDecay(c.Doc, ft, q.Now)
	comp.IntentAlign = intentAlignment(q.Intent, c.Doc.Vertical)
	return comp
}

// embeddingSimilarity maps cosine similarity from [-1,1] to [0,1]. Either
// side missing or mismatched dimensions degrade to 0.
func embeddingSimilarity(query, doc []float32) float64 {
	if len(query) == 0 || len(doc) == 0 || len(query) != len(doc) {
		return 0
	}
	var dot, nq, nd float64
	for i := range query {
		dot += float64(query[i]) * float64(doc[i])
		nq += float64(query[i]) * float64(query[i])
		nd += float64(doc[i]) * float64(doc[i])
	}
	if nq == 0 || nd == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(nq) * math.Sqrt(nd))
	return clamp01((cos + 1) / 2)
}

// structuredBoost rewards structured metadata that answers the query: an
// exact isbn match is the strongest signal the engine has.
func structuredBoost(doc index.Document, q Query) float64 {
	if !doc.Structured {
		return 0
	}
	if q.ISBN != "" && doc.StructuredKV["isbn"] == q.ISBN {
		return 1
	}
	if q.Intent != analyzer.IntentUnknown && intentVertical(q.Intent) == doc.Vertical {
		return 0.5
	}
	return 0.25
}

// freshnessDecay is exp(-ageDays/180): decay reaches 1/e at 180 days.
// Books and articles older than a year are pinned at 0.5: an old edition
// is not worthless the way an old news page is.
func freshnessDecay(doc index.Document, ft feature.Features, now time.Time) float64 {
	ts := doc.Signals.FreshnessTs
	if ft.Found && ft.FreshnessTs != 0 {
		ts = ft.FreshnessTs
	}
	if ts <= 0 {
		return 0
	}
	ageDays := now.Sub(time.Unix(ts, 0)).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > staleVerticalAgeDays &&
		(doc.Vertical == index.VerticalBook || doc.Vertical == index.VerticalArticle) {
		return 0.5
	}
	return math.Exp(-ageDays / freshnessHalfLifeDays)
}

func intentVertical(i analyzer.Intent) index.Vertical {
	switch i {
	case analyzer.IntentBook:
		return index.VerticalBook
	case analyzer.IntentProduct:
		return index.VerticalProduct
	case analyzer.IntentArticle:
		return index.VerticalArticle
	case analyzer.IntentDownload:
		return index.VerticalDownload
	}
	return index.VerticalGeneric
}

// intentAlignment is neutral at 0.5 when the query carries no intent or the
// document no vertical; a matched vertical scores 1, a mismatched one 0.25.
func intentAlignment(i analyzer.Intent, v index.Vertical) float64 {
	if i == analyzer.IntentUnknown || v == index.VerticalGeneric {
		return 0.5
	}
	if intentVertical(i) == v {
		return 1
	}
	return 0.25
}

func pick(found bool, warm, cold float64) float64 {
	if found {
		return clamp01(warm)
	}
	return clamp01(cold)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
