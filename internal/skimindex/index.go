// Package skimindex holds the inverted k-mer index: a map from k-mer to
// the run-length-encoded set of reference files that contain it, plus the
// per-file statistics the classifier needs to score reads against it.
package skimindex

import (
	"math"
	"runtime"
	"sync"

	"github.com/trevor-schnegg/skim-go/internal/bigexpfloat"
	"github.com/trevor-schnegg/skim-go/internal/binomial"
	"github.com/trevor-schnegg/skim-go/internal/bitmap"
	"github.com/trevor-schnegg/skim-go/internal/kmerutil"
	"github.com/trevor-schnegg/skim-go/internal/rle"
)

// Index is the built, queryable database: per-file metadata, the
// k-mer -> RLE map, per-file p-values, and (once requested) the
// precomputed binomial lookup table.
type Index struct {
	Files   []string
	TaxIDs  []uint64
	KmerLen int
	Syncmer *kmerutil.Syncmer

	KmerToRLEIndex map[uint32]uint32
	RLEs           []*rle.RunLengthEncoding
	PValues        []float64

	NFixed      uint64
	LookupTable []bigexpfloat.BigExpFloat

	Consts *binomial.Consts
}

var totalKmersCache sync.Map // key: totalKmersKey, value: int

type totalKmersKey struct {
	k       int
	hasSync bool
	s, t    int
}

// TotalKmers returns the number of distinct canonical (optionally
// syncmer-filtered) k-mers of length k, computed once per (k, syncmer)
// pair by brute-force enumeration over every 2k-bit value. Feasible for
// k <= 15.
func TotalKmers(k int, syncmer *kmerutil.Syncmer) int {
	key := totalKmersKey{k: k}
	if syncmer != nil {
		key.hasSync = true
		key.s = syncmer.S
		key.t = syncmer.T
	}
	if v, ok := totalKmersCache.Load(key); ok {
		return v.(int)
	}

	total := uint64(1) << uint(2*k)
	kmerMask := total - 1
	count := 0

	if syncmer == nil {
		for kmer := uint64(0); kmer < total; kmer++ {
			if kmer == canonicalOf(kmer, k, kmerMask) {
				count++
			}
		}
	} else {
		smerMask := (uint64(1) << uint(2*syncmer.S)) - 1
		diff := k - syncmer.S
		for kmer := uint64(0); kmer < total; kmer++ {
			if kmer != canonicalOf(kmer, k, kmerMask) {
				continue
			}
			if isSyncmer(kmer, diff, smerMask, syncmer.T) {
				count++
			}
		}
	}

	totalKmersCache.Store(key, count)
	return count
}

func canonicalOf(kmer uint64, k int, kmerMask uint64) uint64 {
	var buffer uint64
	complementKmer := (^kmer) & kmerMask
	for i := 0; i < k; i++ {
		letter := complementKmer & 3
		complementKmer >>= 2
		buffer = (buffer << 2) | letter
	}
	if kmer < buffer {
		return kmer
	}
	return buffer
}

func isSyncmer(kmer uint64, diff int, smerMask uint64, t int) bool {
	if diff == 0 {
		return true
	}
	minIdx := 0
	var minVal uint64
	for i := 0; i <= diff; i++ {
		shift := uint(diff-i) * 2
		val := (kmer >> shift) & smerMask
		if i == 0 || val < minVal {
			minVal = val
			minIdx = i
		}
	}
	return minIdx == t
}

// Build assembles an Index from per-file bitmaps. Files must be processed
// in ascending order so that pushes into each file's per-k-mer NaiveRLE
// arrive in ascending order, per the RLE build contract.
func Build(fileBitmaps []*bitmap.Bitmap, files []string, taxIDs []uint64, k int, syncmer *kmerutil.Syncmer) *Index {
	totalKmers := TotalKmers(k, syncmer)

	pValues := make([]float64, len(files))
	for i, bm := range fileBitmaps {
		pValues[i] = float64(bm.Len()) / float64(totalKmers)
	}

	kmerToRLEIndex := make(map[uint32]uint32, totalKmers)
	var naiveRLEs []*rle.NaiveRunLengthEncoding

	for i, bm := range fileBitmaps {
		bm.Iterate(func(kmer uint32) {
			idx, ok := kmerToRLEIndex[kmer]
			if !ok {
				idx = uint32(len(naiveRLEs))
				kmerToRLEIndex[kmer] = idx
				naiveRLEs = append(naiveRLEs, rle.NewNaiveRunLengthEncoding())
			}
			naiveRLEs[idx].Push(uint32(i))
		})
	}

	rles := compressParallel(naiveRLEs)

	return &Index{
		Files:          files,
		TaxIDs:         taxIDs,
		KmerLen:        k,
		Syncmer:        syncmer,
		KmerToRLEIndex: kmerToRLEIndex,
		RLEs:           rles,
		PValues:        pValues,
		Consts:         binomial.NewConsts(4096),
	}
}

// compressParallel runs NaiveRunLengthEncoding.ToRLE over a worker pool
// sized to the available cores; each naive RLE compresses independently.
func compressParallel(naiveRLEs []*rle.NaiveRunLengthEncoding) []*rle.RunLengthEncoding {
	rles := make([]*rle.RunLengthEncoding, len(naiveRLEs))

	limit := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i, n := range naiveRLEs {
		wg.Add(1)
		limit <- struct{}{}
		go func(i int, n *rle.NaiveRunLengthEncoding) {
			defer wg.Done()
			defer func() { <-limit }()
			rles[i] = n.ToRLE()
		}(i, n)
	}
	wg.Wait()

	return rles
}

// NumFiles reports how many reference files the index covers.
func (idx *Index) NumFiles() int { return len(idx.Files) }

// ComputeLookupTable builds the flat F*(nFixed+1) table of
// P[X >= x | X ~ Binomial(nFixed, p_values[i])], trying the native f64
// survival function first and falling back to BigExpFloat only where it
// underflows to zero.
func (idx *Index) ComputeLookupTable(nFixed uint64) {
	idx.NFixed = nFixed
	width := int(nFixed) + 1
	table := make([]bigexpfloat.BigExpFloat, idx.NumFiles()*width)

	limit := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for file := 0; file < idx.NumFiles(); file++ {
		wg.Add(1)
		limit <- struct{}{}
		go func(file int) {
			defer wg.Done()
			defer func() { <-limit }()
			p := idx.PValues[file]
			for x := 0; x <= int(nFixed); x++ {
				native := binomial.NativeSF(p, int(nFixed), x)
				var v bigexpfloat.BigExpFloat
				if native > 0 {
					v = bigexpfloat.FromF64(native)
				} else {
					v = binomial.SF(p, int(nFixed), x, idx.Consts)
				}
				table[file*width+x] = v
			}
		}(file)
	}
	wg.Wait()

	idx.LookupTable = table
	idx.assertLookupTableFinite()
}

// LossyCompress rewrites every RLE under the given compression level and
// recomputes p-values, since compression can only reduce a file's
// apparent k-mer count. It invalidates any previously computed lookup
// table; callers must call ComputeLookupTable again before classifying.
func (idx *Index) LossyCompress(level int) {
	if level <= 0 {
		return
	}

	limit := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i, r := range idx.RLEs {
		wg.Add(1)
		limit <- struct{}{}
		go func(i int, r *rle.RunLengthEncoding) {
			defer wg.Done()
			defer func() { <-limit }()
			idx.RLEs[i] = r.LossyCompress(level)
		}(i, r)
	}
	wg.Wait()

	idx.RecomputePValues()
	idx.LookupTable = nil
}

// RecomputePValues re-derives p_values[i] = (k-mer count of file i) /
// total_kmers by walking every RLE once. Per-goroutine accumulators are
// merged at the end rather than using atomics, as the per-RLE traversal
// work dwarfs the merge cost.
func (idx *Index) RecomputePValues() {
	totalKmers := TotalKmers(idx.KmerLen, idx.Syncmer)
	numFiles := idx.NumFiles()

	numWorkers := runtime.NumCPU()
	if numWorkers > len(idx.RLEs) {
		numWorkers = len(idx.RLEs)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	partials := make([][]int, numWorkers)
	var wg sync.WaitGroup
	chunk := (len(idx.RLEs) + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(idx.RLEs) {
			end = len(idx.RLEs)
		}
		if start >= end {
			continue
		}
		partials[w] = make([]int, numFiles)
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			local := partials[w]
			for _, r := range idx.RLEs[start:end] {
				r.ForEachBlock(
					func(s, e int) {
						for i := s; i < e; i++ {
							local[i]++
						}
					},
					func(s int, bits uint16) {
						for i := 0; i < rle.MaxUncompressedBits; i++ {
							if bits&(1<<uint(i)) != 0 {
								local[s+i]++
							}
						}
					},
				)
			}
		}(w, start, end)
	}
	wg.Wait()

	file2kmerNum := make([]int, numFiles)
	for _, local := range partials {
		for i, v := range local {
			file2kmerNum[i] += v
		}
	}

	pValues := make([]float64, numFiles)
	for i, n := range file2kmerNum {
		pValues[i] = float64(n) / float64(totalKmers)
	}
	idx.PValues = pValues
}

// UpdateTaxID overwrites the taxid of every file whose stored identifier
// exactly equals fileName (the same name can be stored more than once;
// sharded fragments carry distinct "#<n>" names and match only their own),
// returning how many entries were updated.
func (idx *Index) UpdateTaxID(fileName string, newTaxID uint64) int {
	count := 0
	for i, f := range idx.Files {
		if f == fileName {
			idx.TaxIDs[i] = newTaxID
			count++
		}
	}
	return count
}

// assertLookupTableFinite panics if a NaN has crept into the lookup
// table; the classifier's ordering comparison is undefined on NaN and
// must never see one.
func (idx *Index) assertLookupTableFinite() {
	for _, v := range idx.LookupTable {
		if math.IsNaN(v.Mantissa) {
			panic("skimindex: NaN in lookup table")
		}
	}
}
