// Package retriever generates the fused candidate set for one query: it
// fans out to the lexical and n-gram scorers, merges their hits per
// document, and applies the quality gate, per-domain cap, and near-dup
// collapse before the candidates reach feature hydration.
package retriever

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/internal/scorer"
	"github.com/omnidex-search/omnidex/pkg/config"
	apperrors "github.com/omnidex-search/omnidex/pkg/errors"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
)

// simhashMaxDistance is the Hamming radius within which two documents are
// collapsed as near-duplicates.
const simhashMaxDistance = 3

// Candidate is one merged, gated retrieval result.
type Candidate struct {
	Doc           index.Document
	BM25          float64
	NGramCoverage float64
	TitleTerms    int
	URLTerms      int
	AnchorTerms   int
	BM25Rank      int // 1-based rank in the lexical result list; 0 when n-gram only
}

// Retriever runs both first-stage scorers against one pinned epoch.
type Retriever struct {
	cfg     config.RetrievalConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

func New(cfg config.RetrievalConfig, m *metrics.Metrics) *Retriever {
	return &Retriever{
		cfg:     cfg,
		log:     logger.WithComponent("retriever"),
		metrics: m,
	}
}

// Retrieve scores terms and grams concurrently, then merges. An empty term
// list skips the lexical leg (the CJK-only query shape); an empty gram list
// skips the n-gram leg. Both legs empty is the caller's bug and returns an
// empty set, not an error.
func (r *Retriever) Retrieve(ctx context.Context, reader *index.Reader, terms, grams []string) ([]Candidate, error) {
	var lexHits, ngHits []scorer.Hit
	g, ctx := errgroup.WithContext(ctx)
	if len(terms) > 0 {
		g.Go(func() error {
			s := scorer.NewBM25(reader.Lex, reader.Docs, reader.Manifest.FieldWeights)
			lexHits = s.Score(terms, r.cfg.KBM25)
			return ctx.Err()
		})
	}
	if len(grams) > 0 {
		g.Go(func() error {
			s := scorer.NewNGram(reader, r.cfg.MinNGramCoverage, r.cfg.KNGram)
			ngHits = s.Score(grams)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.New(apperrors.ErrDeadline, "retrieval cancelled")
	}

	merged := r.merge(reader, lexHits, ngHits)
	gated := r.gate(merged)
	capped := r.domainCapAndDedup(gated)
	if r.metrics != nil {
		r.metrics.LiveCandidates.WithLabelValues("merged").Observe(float64(len(capped)))
	}
	return capped, nil
}

// merge unions the two hit lists on docId and hydrates document records.
// Documents whose records fail to decode are dropped with a log rather than
// failing the whole query.
func (r *Retriever) merge(reader *index.Reader, lexHits, ngHits []scorer.Hit) []Candidate {
	byDoc := make(map[index.DocID]*Candidate, len(lexHits)+len(ngHits))
	order := make([]index.DocID, 0, len(lexHits)+len(ngHits))

	for i, h := range lexHits {
		c := &Candidate{
			BM25:        h.Score,
			TitleTerms:  h.TitleTerms,
			URLTerms:    h.URLTerms,
			AnchorTerms: h.AnchorTerms,
			BM25Rank:    i + 1,
		}
		byDoc[h.Doc] = c
		order = append(order, h.Doc)
	}
	for _, h := range ngHits {
		if c, ok := byDoc[h.Doc]; ok {
			c.NGramCoverage = h.Score
			continue
		}
		byDoc[h.Doc] = &Candidate{NGramCoverage: h.Score}
		order = append(order, h.Doc)
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byDoc[id]
		doc, err := reader.Docs.Get(id)
		if err != nil {
			r.log.Warn("dropping undecodable candidate", "docId", id, "error", err)
			continue
		}
		c.Doc = doc
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return candidateLess(out[i], out[j]) })
	return out
}

// candidateLess orders by lexical score, then coverage, then docId.
func candidateLess(a, b Candidate) bool {
	if a.BM25 != b.BM25 {
		return a.BM25 > b.BM25
	}
	if a.NGramCoverage != b.NGramCoverage {
		return a.NGramCoverage > b.NGramCoverage
	}
	return a.Doc.ID < b.Doc.ID
}

// gate drops low-quality and thin documents. Either condition is forgiven
// by a strong title or url match inside the lexical top ranks.
func (r *Retriever) gate(cands []Candidate) []Candidate {
	out := cands[:0]
	for _, c := range cands {
		lowQuality := float64(c.Doc.Signals.Quality) < r.cfg.MinQuality
		thin := int(c.Doc.FieldLengths[index.FieldBody]) < r.cfg.MinBodyLength
		if lowQuality || thin {
			strong := (c.TitleTerms > 0 || c.URLTerms > 0) &&
				c.BM25Rank > 0 && c.BM25Rank <= r.cfg.TitleGateTopN
			if !strong {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// domainCapAndDedup enforces the pre-fusion per-domain cap, collapses
// simhash near-duplicates onto their best-ranked representative, and
// truncates to the candidate ceiling. Input must already be rank-ordered.
func (r *Retriever) domainCapAndDedup(cands []Candidate) []Candidate {
	perDomain := make(map[string]int)
	var kept []Candidate
	for _, c := range cands {
		if r.cfg.PreDomainCap > 0 && perDomain[c.Doc.Domain] >= r.cfg.PreDomainCap {
			continue
		}
		dup := false
		for i := range kept {
			if c.Doc.Simhash != 0 && kept[i].Doc.Simhash != 0 &&
				index.HammingDistance(c.Doc.Simhash, kept[i].Doc.Simhash) <= simhashMaxDistance {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		perDomain[c.Doc.Domain]++
		kept = append(kept, c)
		if r.cfg.MaxCandidates > 0 && len(kept) >= r.cfg.MaxCandidates {
			break
		}
	}
	return kept
}
