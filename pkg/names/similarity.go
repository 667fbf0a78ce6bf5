package names

import (
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Empty strings are similar to nothing.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if lb := utf8.RuneCountInString(b); lb > longest {
		longest = lb
	}
	d := fuzzy.LevenshteinDistance(a, b)
	if d >= longest {
		return 0
	}
	return 1 - float64(d)/float64(longest)
}

// BestMatch scans keys in order and returns the most similar one reaching
// threshold. Ties keep the earlier key.
func BestMatch(key string, keys []string, threshold float64) (string, float64) {
	var best string
	var score float64
	for _, k := range keys {
		s := Similarity(key, k)
		if s >= threshold && s > score {
			best, score = k, s
		}
	}
	return best, score
}
