// Package bitmap implements a compact sorted set of uint32 k-mer ids, used
// both as the per-file accumulator during index construction and as the
// representation compared during pairwise distance computation.
package bitmap

import "github.com/twotwotwo/sorts"

// Bitmap is a sorted set of uint32 values. The zero value is an empty,
// usable set.
type Bitmap struct {
	values []uint32
	sorted bool
}

// New returns an empty Bitmap.
func New() *Bitmap {
	return &Bitmap{}
}

// Insert adds v to the set. Duplicate inserts are harmless but not
// deduplicated until the set is queried; callers that insert the same
// k-mer many times in a row (e.g. low-complexity runs) still produce a
// correct Len after Finalize.
func (b *Bitmap) Insert(v uint32) {
	b.values = append(b.values, v)
	b.sorted = false
}

// byUint32 implements sorts.Interface (the subset twotwotwo/sorts.Quicksort
// needs) over a []uint32.
type byUint32 []uint32

func (s byUint32) Len() int           { return len(s) }
func (s byUint32) Less(i, j int) bool { return s[i] < s[j] }
func (s byUint32) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Finalize sorts and deduplicates the backing slice. It is idempotent and
// cheap to call repeatedly; Len, IntersectionLen, and Iterate all call it
// before reading.
func (b *Bitmap) Finalize() {
	if b.sorted {
		return
	}
	sorts.Quicksort(byUint32(b.values))
	b.values = dedupSorted(b.values)
	b.sorted = true
}

func dedupSorted(values []uint32) []uint32 {
	if len(values) == 0 {
		return values
	}
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of distinct members.
func (b *Bitmap) Len() uint64 {
	b.Finalize()
	return uint64(len(b.values))
}

// IntersectionLen returns the number of values shared with other, via a
// linear merge of the two sorted backing slices.
func (b *Bitmap) IntersectionLen(other *Bitmap) uint64 {
	b.Finalize()
	other.Finalize()

	var count uint64
	i, j := 0, 0
	for i < len(b.values) && j < len(other.values) {
		switch {
		case b.values[i] < other.values[j]:
			i++
		case b.values[i] > other.values[j]:
			j++
		default:
			count++
			i++
			j++
		}
	}
	return count
}

// Iterate calls fn once for every member in ascending order.
func (b *Bitmap) Iterate(fn func(uint32)) {
	b.Finalize()
	for _, v := range b.values {
		fn(v)
	}
}
