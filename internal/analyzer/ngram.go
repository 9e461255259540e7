package analyzer

import "unicode"

// ngrams slides windows of nMin..nMax runes over each non-space span of the
// normalized text. Deduplicated, order-preserving.
func ngrams(normalized string, nMin, nMax int) []string {
	if nMin <= 0 || nMax < nMin {
		return nil
	}
	out := make([]string, 0, 32)
	seen := make(map[string]struct{}, 32)

	span := make([]rune, 0, 64)
	emit := func() {
		for n := nMin; n <= nMax; n++ {
			if len(span) < n {
				break
			}
			for i := 0; i+n <= len(span); i++ {
				g := string(span[i : i+n])
				if _, dup := seen[g]; dup {
					continue
				}
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
		span = span[:0]
	}

	for _, r := range normalized {
		if unicode.IsSpace(r) {
			emit()
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			span = append(span, r)
		}
	}
	emit()
	return out
}
