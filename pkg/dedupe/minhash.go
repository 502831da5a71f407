// Package dedupe removes duplicate evidence items in three passes: exact
// canonical-URL match, exact content-hash match, then near-duplicate
// detection with MinHash signatures over character shingles.
package dedupe

import (
	"hash/fnv"
	"strings"
)

const (
	numHashes   = 64
	shingleSize = 6
	numBands    = 16 // 16 bands of 4 rows; candidates verified exactly
)

// signature is a MinHash sketch of a text's shingle set.
type signature [numHashes]uint64

// shingles returns the set of lowercase character 6-grams of text.
func shingles(text string) map[uint64]struct{} {
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))
	out := make(map[uint64]struct{})
	runes := []rune(text)
	if len(runes) < shingleSize {
		if len(runes) > 0 {
			h := fnv.New64a()
			h.Write([]byte(string(runes)))
			out[h.Sum64()] = struct{}{}
		}
		return out
	}
	for i := 0; i+shingleSize <= len(runes); i++ {
		h := fnv.New64a()
		h.Write([]byte(string(runes[i : i+shingleSize])))
		out[h.Sum64()] = struct{}{}
	}
	return out
}

// minhash builds the sketch using the standard (a*x+b) universal-hash family
// with fixed odd multipliers so signatures are stable across runs.
func minhash(sh map[uint64]struct{}) signature {
	var sig signature
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for x := range sh {
		for i := 0; i < numHashes; i++ {
			a := uint64(2*i + 1)
			b := uint64(i) * 0x9e3779b97f4a7c15
			v := a*x + b
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// estimate returns the fraction of matching signature positions, an unbiased
// estimator of shingle-set Jaccard similarity.
func estimate(a, b signature) float64 {
	match := 0
	for i := range a {
		if a[i] == b[i] {
			match++
		}
	}
	return float64(match) / float64(numHashes)
}

// bandKeys returns one key per LSH band; two signatures colliding on any
// band become a candidate pair.
func bandKeys(sig signature) []uint64 {
	rows := numHashes / numBands
	keys := make([]uint64, numBands)
	for band := 0; band < numBands; band++ {
		h := fnv.New64a()
		for r := 0; r < rows; r++ {
			v := sig[band*rows+r]
			var buf [8]byte
			for j := 0; j < 8; j++ {
				buf[j] = byte(v >> (8 * j))
			}
			h.Write(buf[:])
		}
		keys[band] = uint64(band)<<56 | h.Sum64()>>8
	}
	return keys
}
