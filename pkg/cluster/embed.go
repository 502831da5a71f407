// Package cluster groups evidence items whose claims are paraphrases of each
// other, the unit over which triangulation is judged.
package cluster

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedder turns claim text into a vector for cosine comparison. The default
// is a hashed lexical embedding; a caller with a real embedding service can
// install one through the same interface.
type Embedder interface {
	Embed(text string) []float32
	// Semantic reports whether vectors carry meaning beyond lexical
	// overlap. When false, the clusterer uses Jaccard token similarity
	// with its own threshold instead of cosine.
	Semantic() bool
}

const lexicalDims = 256

var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}%.]+`)

// stopwords excluded from tokenization; claims differ in content words.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "to": {},
	"and": {}, "or": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"by": {}, "for": {}, "with": {}, "at": {}, "from": {}, "that": {},
	"this": {}, "it": {}, "as": {}, "has": {}, "have": {}, "had": {},
}

// tokens returns lowercase content tokens of text.
func tokens(text string) []string {
	var out []string
	for _, w := range wordSplit.Split(strings.ToLower(text), -1) {
		w = strings.Trim(w, ".")
		if len(w) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// LexicalEmbedder hashes unigrams and bigrams into a fixed-width vector.
// Cosine over these vectors approximates weighted token overlap; it has no
// semantic signal, so Semantic reports false and the clusterer falls back to
// the Jaccard threshold.
type LexicalEmbedder struct{}

func (LexicalEmbedder) Semantic() bool { return false }

// Embed produces the L2-normalized hashed bag-of-ngrams vector.
func (LexicalEmbedder) Embed(text string) []float32 {
	vec := make([]float32, lexicalDims)
	toks := tokens(text)
	add := func(s string, weight float32) {
		h := fnv.New32a()
		h.Write([]byte(s))
		sum := h.Sum32()
		idx := sum % lexicalDims
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[idx] += sign * weight
	}
	for i, t := range toks {
		add(t, 1)
		if i+1 < len(toks) {
			add(t+"_"+toks[i+1], 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// cosine returns the dot product of two normalized vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// jaccard returns token-set Jaccard similarity.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	inter := 0
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := setB[t]; dup {
			continue
		}
		setB[t] = struct{}{}
		if _, ok := setA[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
