package analyzer

import "strings"

// scriptLanguage maps scripts that imply a single supported language.
var scriptLanguage = map[string]struct {
	lang string
	conf float64
}{
	"Hani": {"zh", 0.90},
	"Hira": {"ja", 0.95},
	"Kana": {"ja", 0.95},
	"Hang": {"ko", 0.95},
	"Deva": {"hi", 0.85},
	"Thai": {"th", 0.95},
	"Hebr": {"he", 0.90},
	"Grek": {"el", 0.90},
	"Geor": {"ka", 0.90},
	"Armn": {"hy", 0.90},
	"Taml": {"ta", 0.90},
	"Beng": {"bn", 0.85},
}

// massScale calibrates matched trigram mass into a confidence. Profiles
// hold the top ~50 trigrams of each language, which cover roughly a
// quarter of the trigram mass of genuine text in that language.
const massScale = 4.0

// DetectLanguage classifies normalized text with a byte-trigram profile
// classifier. For scripts written by a single supported language the script
// itself decides. Returns the best language and a confidence in [0,1];
// callers below MinConfidence should report "und".
func DetectLanguage(normalized string, script string) (string, float64) {
	if sl, ok := scriptLanguage[script]; ok {
		return sl.lang, sl.conf
	}

	counts, total := textTrigrams(normalized)
	if total == 0 {
		return "und", 0
	}

	best, second := "", 0.0
	bestScore := 0.0
	for _, p := range profiles {
		if p.script != script {
			continue
		}
		score := matchedMass(counts, total, p)
		switch {
		case score > bestScore:
			second = bestScore
			best, bestScore = p.lang, score
		case score == bestScore && best != "" && p.lang < best:
			// Deterministic tie-break.
			best = p.lang
		case score > second:
			second = score
		}
	}
	if best == "" {
		return "und", 0
	}

	conf := bestScore * massScale
	if conf > 1 {
		conf = 1
	}
	if second > 0 {
		conf *= bestScore / (bestScore + second)
		conf *= 2 // separation of 0.5 means two equally likely languages
		if conf > 1 {
			conf = 1
		}
	}
	return best, conf
}

// textTrigrams counts trigrams of the boundary-padded words of text.
func textTrigrams(text string) (map[string]int, int) {
	counts := make(map[string]int, 64)
	total := 0
	for _, word := range strings.Fields(text) {
		padded := "_" + word + "_"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			counts[string(runes[i:i+3])]++
			total++
		}
	}
	return counts, total
}

// matchedMass is the rank-weighted fraction of the text's trigram mass
// found in the profile.
func matchedMass(counts map[string]int, total int, p profile) float64 {
	n := float64(len(p.trigrams))
	var score float64
	for rank, g := range p.trigrams {
		if c, ok := counts[g]; ok {
			score += float64(c) * (n - float64(rank)) / n
		}
	}
	return score / float64(total)
}
