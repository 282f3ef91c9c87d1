package ingest

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// HammingThreshold is the maximum bit distance between two abstract
// signatures for the abstracts to count as near-duplicates.
const HammingThreshold = 3

// simhashStopWords are skipped when building signatures. Function words
// carry no signal and would pull unrelated abstracts together.
var simhashStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "with": true,
}

// SimHash computes a 64-bit similarity signature over the text's words.
// Near-identical texts differ in only a few bits.
func SimHash(text string) uint64 {
	var counts [64]int

	for _, word := range tokenizeWords(text) {
		if simhashStopWords[word] {
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(word))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}

	var out uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// HammingDistance counts differing bits between two signatures.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// tokenizeWords lowercases and splits on non-alphanumeric runes.
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// titleTrigrams returns the set of character trigrams of a normalized title.
func titleTrigrams(title string) map[string]bool {
	normalized := strings.Join(tokenizeWords(title), " ")
	runes := []rune(normalized)
	set := make(map[string]bool)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}

// TitleSimilarity computes trigram Jaccard similarity between two titles,
// in [0, 1].
func TitleSimilarity(a, b string) float64 {
	ta, tb := titleTrigrams(a), titleTrigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for g := range ta {
		if tb[g] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}
