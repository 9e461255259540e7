package fusion

import (
	"math"
	"sort"
)

// Diversify applies maximal marginal relevance over the fused scores and a
// hard per-domain cap, returning up to k results. Document similarity is
// embedding cosine where both sides carry vectors, otherwise 0, so missing
// embeddings never suppress a result on similarity grounds alone.
func Diversify(scored []Scored, lambda float64, domainCap, k int) []Scored {
	if len(scored) == 0 || k <= 0 {
		return nil
	}
	pool := make([]Scored, len(scored))
	copy(pool, scored)
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Final != pool[j].Final {
			return pool[i].Final > pool[j].Final
		}
		return pool[i].Candidate.Doc.ID < pool[j].Candidate.Doc.ID
	})

	selected := make([]Scored, 0, k)
	perDomain := make(map[string]int)
	used := make([]bool, len(pool))

	for len(selected) < k {
		bestIdx := -1
		bestVal := 0.0
		for i, s := range pool {
			if used[i] {
				continue
			}
			if domainCap > 0 && perDomain[s.Candidate.Doc.Domain] >= domainCap {
				continue
			}
			maxSim := 0.0
			for _, sel := range selected {
				if sim := docSimilarity(s, sel); sim > maxSim {
					maxSim = sim
				}
			}
			val := lambda*s.Final - (1-lambda)*maxSim
			if bestIdx == -1 || val > bestVal {
				bestIdx = i
				bestVal = val
			}
		}
		if bestIdx == -1 {
			break
		}
		used[bestIdx] = true
		perDomain[pool[bestIdx].Candidate.Doc.Domain]++
		selected = append(selected, pool[bestIdx])
	}
	return selected
}

// docSimilarity is raw cosine clamped to [0,1]; anti-correlated vectors are
// simply "not similar", they earn no diversity bonus.
func docSimilarity(a, b Scored) float64 {
	va, vb := a.Features.Embedding, b.Features.Embedding
	if len(va) == 0 || len(vb) == 0 || len(va) != len(vb) {
		return 0
	}
	var dot, na, nb float64
	for i := range va {
		dot += float64(va[i]) * float64(vb[i])
		na += float64(va[i]) * float64(va[i])
		nb += float64(vb[i]) * float64(vb[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
