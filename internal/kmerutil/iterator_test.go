package kmerutil

import (
	"math/rand"
	"testing"
)

const testSeq = "CGATTAAAGATAGAAATACACGNTGCGAGCAATCAAATT"

func collect(it *Iterator) []uint64 {
	var out []uint64
	for {
		v, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestCanonicalNoSyncmers(t *testing.T) {
	want := []uint64{
		0b01_10_00_11_11_00_00_00_10_00_11_00_10_00,
		0b10_00_11_11_00_00_00_10_00_11_00_10_00_00,
		0b00_11_11_00_00_00_10_00_11_00_10_00_00_00,
		0b00_11_11_11_01_11_00_11_01_11_11_11_00_00,
		0b11_00_00_00_10_00_11_00_10_00_00_00_11_00,
		0b00_00_00_10_00_11_00_10_00_00_00_11_00_01,
		0b00_00_10_00_11_00_10_00_00_00_11_00_01_00,
		0b00_10_00_11_00_10_00_00_00_11_00_01_00_01,
		0b01_10_11_10_11_00_11_11_11_01_11_00_11_01,
		0b11_10_01_10_00_10_01_00_00_11_01_00_00_00,
		0b00_11_11_11_10_00_11_11_10_01_11_01_10_01,
		0b00_00_11_11_11_10_00_11_11_10_01_11_01_10,
	}
	got := collect(NewIterator([]byte(testSeq), 14, nil))
	assertUint64Slices(t, got, want)
}

func TestCanonicalSyncmerOffsetZero(t *testing.T) {
	want := []uint64{
		0b00_11_11_00_00_00_10_00_11_00_10_00_00_00,
		0b00_11_11_11_01_11_00_11_01_11_11_11_00_00,
		0b00_00_00_10_00_11_00_10_00_00_00_11_00_01,
		0b00_00_10_00_11_00_10_00_00_00_11_00_01_00,
		0b00_10_00_11_00_10_00_00_00_11_00_01_00_01,
		0b01_10_11_10_11_00_11_11_11_01_11_00_11_01,
		0b00_11_11_11_10_00_11_11_10_01_11_01_10_01,
		0b00_00_11_11_11_10_00_11_11_10_01_11_01_10,
	}
	got := collect(NewIterator([]byte(testSeq), 14, &Syncmer{S: 12, T: 0}))
	assertUint64Slices(t, got, want)
}

func TestCanonicalSyncmerOffsetOne(t *testing.T) {
	want := []uint64{
		0b10_00_11_11_00_00_00_10_00_11_00_10_00_00,
		0b11_00_00_00_10_00_11_00_10_00_00_00_11_00,
	}
	got := collect(NewIterator([]byte(testSeq), 14, &Syncmer{S: 12, T: 1}))
	assertUint64Slices(t, got, want)
}

func assertUint64Slices(t *testing.T, got, want []uint64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d kmers, want %d\ngot:  %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("kmer %d: got %014b, want %014b", i, got[i], want[i])
		}
	}
}

func randomSeq(r *rand.Rand, n int) []byte {
	bases := []byte("ACGT")
	out := make([]byte, n)
	for i := range out {
		out[i] = bases[r.Intn(4)]
	}
	return out
}

func reverseComplementSeq(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		var c byte
		switch b {
		case 'A':
			c = 'T'
		case 'C':
			c = 'G'
		case 'G':
			c = 'C'
		case 'T':
			c = 'A'
		}
		out[len(seq)-1-i] = c
	}
	return out
}

func multiset(vals []uint64) map[uint64]int {
	m := make(map[uint64]int, len(vals))
	for _, v := range vals {
		m[v]++
	}
	return m
}

func TestReverseComplementYieldsSameMultiset(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		seq := randomSeq(r, 30+r.Intn(50))
		fwd := collect(NewIterator(seq, 11, nil))
		rev := collect(NewIterator(reverseComplementSeq(seq), 11, nil))

		fwdSet := multiset(fwd)
		revSet := multiset(rev)
		if len(fwdSet) != len(revSet) {
			t.Fatalf("seq %s: forward/reverse-complement kmer multisets differ in size", seq)
		}
		for k, c := range fwdSet {
			if revSet[k] != c {
				t.Fatalf("seq %s: kmer %d appears %d times forward, %d times reverse-complemented", seq, k, c, revSet[k])
			}
		}
	}
}

func TestNonACGTCharacterSplitsEnumeration(t *testing.T) {
	it := NewIterator([]byte("ACGTACGTNACGTACGT"), 8, nil)
	got := collect(it)
	if len(got) != 2 {
		t.Fatalf("expected enumeration to split around the N character into two windows, got %d kmers", len(got))
	}
}

func TestEmptyOnAllInvalidSequence(t *testing.T) {
	it := NewIterator([]byte("NNNNNNNNNNNN"), 4, nil)
	if got := collect(it); got != nil {
		t.Fatalf("expected empty enumeration, got %v", got)
	}
}
