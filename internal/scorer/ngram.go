package scorer

import (
	"container/heap"
	"sort"
	"unicode/utf8"

	"github.com/omnidex-search/omnidex/internal/index"
)

// NGramScorer ranks documents by weighted gram coverage: the fraction of
// the query's grams a document contains, where longer grams count for more
// (a gram of n codepoints weighs n/5). It serves scripts without word
// boundaries and substring-style queries the lexical index cannot match.
type NGramScorer struct {
	reader *index.Reader
	// MinCoverage drops weak matches; Cap bounds the result size.
	MinCoverage float64
	Cap         int
}

func NewNGram(r *index.Reader, minCoverage float64, limit int) *NGramScorer {
	if limit <= 0 {
		limit = 100
	}
	return &NGramScorer{reader: r, MinCoverage: minCoverage, Cap: limit}
}

func gramWeight(g string) float64 {
	return float64(utf8.RuneCountInString(g)) / 5.0
}

// Score accumulates coverage over the query grams. Grams excluded at build
// time as stopgrams are skipped on both sides of the ratio; queries whose
// grams are all stopgrams return nothing rather than everything. Queries
// shorter than the minimum gram length produce no grams and no hits.
func (s *NGramScorer) Score(grams []string) []Hit {
	var total float64
	live := make([]string, 0, len(grams))
	for _, g := range grams {
		if s.reader.IsStopgram(g) {
			continue
		}
		live = append(live, g)
		total += gramWeight(g)
	}
	if total == 0 {
		return nil
	}

	matched := make(map[index.DocID]float64)
	for _, g := range live {
		w := gramWeight(g)
		it := s.reader.NGram.Postings(g)
		for it.Next() {
			matched[it.At().Doc] += w
		}
	}

	h := make(hitHeap, 0, s.Cap)
	for doc, m := range matched {
		cov := m / total
		if cov < s.MinCoverage {
			continue
		}
		hit := Hit{Doc: doc, Score: cov}
		if len(h) < s.Cap {
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
