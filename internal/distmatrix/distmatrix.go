// Package distmatrix computes and extends the pairwise symmetric-difference
// distance matrix over per-file k-mer bitmaps.
package distmatrix

import (
	"runtime"
	"sync"

	"github.com/trevor-schnegg/skim-go/internal/bitmap"
)

// Matrix is a lower-triangular jagged distance matrix: Rows[i] has i+1
// entries, Rows[i][j] = D[i][j] for j <= i.
type Matrix struct {
	Rows [][]uint32
}

// Build computes the full lower triangle for n bitmaps: D[i][j] =
// |B_i| + |B_j| - 2*|B_i intersect B_j|, D[i][i] = 0.
func Build(bitmaps []*bitmap.Bitmap) *Matrix {
	m := &Matrix{Rows: make([][]uint32, len(bitmaps))}
	computeRows(m, bitmaps, 0)
	return m
}

// Extend grows an existing matrix computed over oldBitmaps to cover
// oldBitmaps ++ newBitmaps, preserving every row of m unchanged and
// computing only the new rows against all preceding columns (including
// the new ones before them).
func Extend(m *Matrix, allBitmaps []*bitmap.Bitmap) *Matrix {
	oldN := len(m.Rows)
	extended := &Matrix{Rows: make([][]uint32, len(allBitmaps))}
	copy(extended.Rows, m.Rows)
	computeRows(extended, allBitmaps, oldN)
	return extended
}

// computeRows fills Rows[from:] of m using allBitmaps, in parallel across
// rows since each row's computation reads allBitmaps read-only.
func computeRows(m *Matrix, allBitmaps []*bitmap.Bitmap, from int) {
	limit := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i := from; i < len(allBitmaps); i++ {
		wg.Add(1)
		limit <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-limit }()
			row := make([]uint32, i+1)
			bi := allBitmaps[i]
			biLen := bi.Len()
			for j := 0; j <= i; j++ {
				if j == i {
					row[j] = 0
					continue
				}
				bj := allBitmaps[j]
				inter := bi.IntersectionLen(bj)
				row[j] = uint32(biLen + bj.Len() - 2*inter)
			}
			m.Rows[i] = row
		}(i)
	}
	wg.Wait()
}

// At returns D[i][j] for j <= i.
func (m *Matrix) At(i, j int) uint32 {
	if j > i {
		i, j = j, i
	}
	return m.Rows[i][j]
}
