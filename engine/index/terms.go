package index

import (
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "over", "under", "again", "further", "than", "so", "such", "into",
		"about", "between", "through", "during", "before", "after", "above", "below", "out", "off",
		"own", "same", "too", "very", "can", "will", "just", "should", "now", "what", "which", "who",
		"how", "do", "does", "did", "i", "me", "my", "we", "our", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// sparseTerms encodes text as a term-frequency sparse vector keyed by a
// 32-bit hash of each token. The collection applies IDF at query time, so
// together they score like BM25 without a shared vocabulary. Hash
// collisions merge counts.
func sparseTerms(text string) (indices []uint32, values []float32) {
	tf := make(map[uint32]float32)
	for _, tok := range tokenize(text) {
		tf[termID(tok)]++
	}
	return flatten(tf)
}

// queryTerms weights every distinct query term equally.
func queryTerms(text string) (indices []uint32, values []float32) {
	tf := make(map[uint32]float32)
	for _, tok := range tokenize(text) {
		tf[termID(tok)] = 1
	}
	return flatten(tf)
}

func termID(tok string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return h.Sum32()
}

func flatten(tf map[uint32]float32) ([]uint32, []float32) {
	if len(tf) == 0 {
		return nil, nil
	}
	indices := make([]uint32, 0, len(tf))
	for id := range tf {
		indices = append(indices, id)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	values := make([]float32, len(indices))
	for i, id := range indices {
		values[i] = tf[id]
	}
	return indices, values
}
