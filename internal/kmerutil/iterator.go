// Package kmerutil implements streaming canonical k-mer and syncmer
// enumeration over raw base sequences.
package kmerutil

// complement maps a 2-bit base code to its complementary base code:
// A(0)<->T(3), C(1)<->G(2).
var complement = [4]uint64{3, 2, 1, 0}

func base2code(b byte) (uint64, bool) {
	switch b {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	default:
		return 0, false
	}
}

// Syncmer carries the (s, t) parameters of a syncmer filter: s is the
// s-mer length and t is the required offset of its minimum within the
// k-mer, counted from the left.
type Syncmer struct {
	S, T int
}

// Iterator streams canonical (and optionally syncmer-filtered) k-mers out
// of a byte sequence. It is single-pass and not restartable.
type Iterator struct {
	seq []byte
	pos int

	k                int
	kmerMask         uint64
	firstLetterShift uint

	syncmer      *Syncmer
	smerMask     uint64
	kmerSmerDiff int

	initialized bool
	currKmer    uint64
	currRevComp uint64
}

// NewIterator constructs an Iterator over seq with k-mer length k and an
// optional syncmer filter. Preconditions: syncmer.S <= k and
// syncmer.T <= k - syncmer.S; violating them panics, matching the
// precondition-as-programmer-error contract of the rest of this package.
func NewIterator(seq []byte, k int, syncmer *Syncmer) *Iterator {
	if syncmer != nil {
		if syncmer.S > k || syncmer.T > k-syncmer.S {
			panic("kmerutil: invalid syncmer parameters")
		}
	}
	it := &Iterator{
		seq:              seq,
		k:                k,
		kmerMask:         (uint64(1) << uint(2*k)) - 1,
		firstLetterShift: uint(2 * (k - 1)),
		syncmer:          syncmer,
	}
	if syncmer != nil {
		it.smerMask = (uint64(1) << uint(2*syncmer.S)) - 1
		it.kmerSmerDiff = k - syncmer.S
	}
	return it
}

// Next returns the next canonical k-mer (syncmer-filtered, if configured)
// and true, or (0, false) once the sequence is exhausted.
func (it *Iterator) Next() (uint64, bool) {
	for {
		var kmer uint64
		var ok bool
		if !it.initialized {
			it.initialized = true
			kmer, ok = it.resync()
		} else {
			kmer, ok = it.step()
		}
		if !ok {
			return 0, false
		}
		if it.syncmer == nil || it.isSyncmer(kmer) {
			return kmer, true
		}
	}
}

// resync reads forward from the current cursor, discarding accumulated
// state on any non-ACGT base, until k valid bases have been read or the
// sequence ends.
func (it *Iterator) resync() (uint64, bool) {
	var buffer uint64
	n := 0
	for it.pos < len(it.seq) {
		b := it.seq[it.pos]
		it.pos++
		code, valid := base2code(b)
		if !valid {
			buffer = 0
			n = 0
			continue
		}
		buffer = (buffer << 2) | code
		n++
		if n == it.k {
			it.currKmer = buffer
			it.currRevComp = it.reverseComplement(buffer)
			return it.canonical(), true
		}
	}
	return 0, false
}

// reverseComplement computes the reverse complement of a fully-formed
// k-mer by popping 2-bit letters off the complemented value and
// reassembling them in reverse order.
func (it *Iterator) reverseComplement(kmer uint64) uint64 {
	var buffer uint64
	complementKmer := (^kmer) & it.kmerMask
	for i := 0; i < it.k; i++ {
		letter := complementKmer & 3
		complementKmer >>= 2
		buffer = (buffer << 2) | letter
	}
	return buffer
}

// step extends the window by one base, or performs a full resync on an
// invalid base.
func (it *Iterator) step() (uint64, bool) {
	if it.pos >= len(it.seq) {
		return 0, false
	}
	b := it.seq[it.pos]
	it.pos++
	code, valid := base2code(b)
	if !valid {
		return it.resync()
	}
	it.currKmer = ((it.currKmer << 2) | code) & it.kmerMask
	it.currRevComp = (it.currRevComp >> 2) | (complement[code] << it.firstLetterShift)
	return it.canonical(), true
}

func (it *Iterator) canonical() uint64 {
	if it.currKmer < it.currRevComp {
		return it.currKmer
	}
	return it.currRevComp
}

// isSyncmer reports whether kmer (already in canonical form) is a syncmer
// under it.syncmer: the s-mer window whose value is minimal among the
// kmer_smer_diff+1 overlapping windows must start at offset t, ties
// resolved by earliest position.
func (it *Iterator) isSyncmer(kmer uint64) bool {
	if it.kmerSmerDiff == 0 {
		return true
	}
	minIdx := 0
	var minVal uint64
	for i := 0; i <= it.kmerSmerDiff; i++ {
		shift := uint(it.kmerSmerDiff-i) * 2
		val := (kmer >> shift) & it.smerMask
		if i == 0 || val < minVal {
			minVal = val
			minIdx = i
		}
	}
	return minIdx == it.syncmer.T
}
