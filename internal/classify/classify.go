// Package classify scores a read against a built index: count k-mer hits
// per file, convert to a p-value via the index's precomputed lookup
// table, and report the best match under a significance cutoff.
package classify

import (
	"math"

	"github.com/trevor-schnegg/skim-go/internal/bigexpfloat"
	"github.com/trevor-schnegg/skim-go/internal/kmerutil"
	"github.com/trevor-schnegg/skim-go/internal/skimindex"
)

// Result is the outcome of classifying a single read.
type Result struct {
	Matched bool
	File    string
	TaxID   uint64
}

// Classify iterates read's k-mers against idx, accumulates per-file hit
// counts, and returns the lowest-p-value file whose probability is below
// cutoff, or a non-matching Result if none qualifies.
func Classify(idx *skimindex.Index, read []byte, cutoff bigexpfloat.BigExpFloat) Result {
	numHits := make([]float64, idx.NumFiles())
	var nTotal float64

	it := kmerutil.NewIterator(read, idx.KmerLen, idx.Syncmer)
	for {
		kmer, ok := it.Next()
		if !ok {
			break
		}
		nTotal++
		if rleIdx, found := idx.KmerToRLEIndex[uint32(kmer)]; found {
			idx.RLEs[rleIdx].ForEachBlock(
				func(start, end int) {
					for i := start; i < end; i++ {
						numHits[i]++
					}
				},
				func(start int, bits uint16) {
					for i := 0; i < 14; i++ {
						if bits&(1<<uint(i)) != 0 {
							numHits[start+i]++
						}
					}
				},
			)
		}
	}

	if nTotal == 0 {
		return Result{}
	}

	bestIndex := -1
	var bestProb bigexpfloat.BigExpFloat
	width := int(idx.NFixed) + 1

	for i, hits := range numHits {
		expected := nTotal * idx.PValues[i]
		if hits <= expected {
			// Observed count does not exceed the null expectation; the
			// p-value is >= 0.5 and cannot be significant.
			continue
		}
		x := int(math.Round(hits * float64(idx.NFixed) / nTotal))
		if x > int(idx.NFixed) {
			x = int(idx.NFixed)
		}
		prob := idx.LookupTable[i*width+x]
		if bestIndex == -1 || prob.Less(bestProb) {
			bestIndex = i
			bestProb = prob
		}
	}

	if bestIndex == -1 || !bestProb.Less(cutoff) {
		return Result{}
	}

	return Result{
		Matched: true,
		File:    idx.Files[bestIndex],
		TaxID:   idx.TaxIDs[bestIndex],
	}
}
