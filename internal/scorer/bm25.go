// Package scorer implements the first-stage relevance scorers that run
// directly against a pinned index epoch: field-weighted BM25 over the
// lexical index and coverage scoring over the character n-gram index.
package scorer

import (
	"container/heap"
	"math"
	"sort"

	"github.com/omnidex-search/omnidex/internal/index"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Hit is one scored candidate out of a first-stage scorer.
type Hit struct {
	Doc   index.DocID
	Score float64
	// TitleTerms and URLTerms count distinct query terms matched in the
	// title and url fields; the retriever's quality gate reads them.
	TitleTerms  int
	URLTerms    int
	AnchorTerms int
}

// BM25Scorer scores query terms against one epoch's lexical index using
// per-field weights and per-document field length normalization.
type BM25Scorer struct {
	idx     *index.PostingsIndex
	docs    *index.DocStore
	weights [index.NumFields]float64
}

func NewBM25(idx *index.PostingsIndex, docs *index.DocStore, weights [index.NumFields]float64) *BM25Scorer {
	return &BM25Scorer{idx: idx, docs: docs, weights: weights}
}

// idf is the clamped formulation; terms present in most of the corpus floor
// at zero instead of going negative.
func (s *BM25Scorer) idf(df uint32) float64 {
	n := float64(s.idx.NumDocs())
	v := math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
	if v < 0 {
		return 0
	}
	return v
}

type bm25Acc struct {
	score       float64
	titleTerms  int
	urlTerms    int
	anchorTerms int
}

// Score runs term-at-a-time accumulation and returns up to k hits ordered
// by score descending, smaller docId first on ties. Terms absent from the
// index contribute nothing; a query of all-unknown terms yields no hits.
func (s *BM25Scorer) Score(terms []string, k int) []Hit {
	if k <= 0 || len(terms) == 0 {
		return nil
	}
	acc := make(map[index.DocID]*bm25Acc)
	for _, term := range terms {
		df := s.idx.DocFreq(term)
		if df == 0 {
			continue
		}
		idf := s.idf(df)
		it := s.idx.Postings(term)
		for it.Next() {
			p := it.At()
			a := acc[p.Doc]
			if a == nil {
				a = &bm25Acc{}
				acc[p.Doc] = a
			}
			a.score += s.weights[p.Field] * idf * s.termWeight(p)
			switch p.Field {
			case index.FieldTitle:
				a.titleTerms++
			case index.FieldURL:
				a.urlTerms++
			case index.FieldAnchors:
				a.anchorTerms++
			}
		}
	}
	return topK(acc, k)
}

func (s *BM25Scorer) termWeight(p index.Posting) float64 {
	tf := float64(p.TF)
	norm := 1.0
	if avg := s.idx.AvgFieldLength(p.Field); avg > 0 {
		norm = 1 - bm25B + bm25B*float64(s.docs.FieldLength(p.Doc, p.Field))/avg
	}
	return tf * (bm25K1 + 1) / (tf + bm25K1*norm)
}

// hitHeap is a min-heap over retained hits; the root is the weakest. Equal
// scores rank the smaller docId as stronger.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }
func (h hitHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Doc > h[j].Doc
}
func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)   { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// stronger reports whether a outranks b in the final ordering.
func stronger(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

func topK(acc map[index.DocID]*bm25Acc, k int) []Hit {
	h := make(hitHeap, 0, k)
	for doc, a := range acc {
		hit := Hit{Doc: doc, Score: a.score, TitleTerms: a.titleTerms, URLTerms: a.urlTerms, AnchorTerms: a.anchorTerms}
		if len(h) < k {
			heap.Push(&h, hit)
		} else if stronger(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}
	out := []Hit(h)
	sort.Slice(out, func(i, j int) bool { return stronger(out[i], out[j]) })
	return out
}
