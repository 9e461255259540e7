package index

import "github.com/cespare/xxhash/v2"

// Simhash computes a 64-bit near-duplicate fingerprint over the document's
// terms. Hamming distance <= 3 between two fingerprints marks the documents
// as near-duplicates.
func Simhash(terms []string) uint64 {
	if len(terms) == 0 {
		return 0
	}
	var acc [64]int
	for _, t := range terms {
		h := xxhash.Sum64String(t)
		for b := 0; b < 64; b++ {
			if h&(1<<uint(b)) != 0 {
				acc[b]++
			} else {
				acc[b]--
			}
		}
	}
	var out uint64
	for b := 0; b < 64; b++ {
		if acc[b] > 0 {
			out |= 1 << uint(b)
		}
	}
	return out
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	x := a ^ b
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
