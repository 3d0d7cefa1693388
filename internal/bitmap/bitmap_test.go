package bitmap

import (
	"math/rand"
	"testing"
)

func TestInsertAndLenDedups(t *testing.T) {
	b := New()
	for _, v := range []uint32{5, 1, 5, 3, 1, 2} {
		b.Insert(v)
	}
	if got := b.Len(); got != 4 {
		t.Fatalf("Len() = %d, want 4", got)
	}
}

func TestIterateAscending(t *testing.T) {
	b := New()
	for _, v := range []uint32{9, 2, 7, 2, 0} {
		b.Insert(v)
	}
	var got []uint32
	b.Iterate(func(v uint32) { got = append(got, v) })
	want := []uint32{0, 2, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIntersectionLen(t *testing.T) {
	a := New()
	for _, v := range []uint32{1, 2, 3, 4, 5} {
		a.Insert(v)
	}
	b := New()
	for _, v := range []uint32{3, 4, 5, 6, 7} {
		b.Insert(v)
	}
	if got := a.IntersectionLen(b); got != 3 {
		t.Fatalf("IntersectionLen() = %d, want 3", got)
	}
	if got := b.IntersectionLen(a); got != 3 {
		t.Fatalf("IntersectionLen() symmetric case = %d, want 3", got)
	}
}

func TestIntersectionLenAgainstBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for trial := 0; trial < 20; trial++ {
		a, b := New(), New()
		present := make(map[uint32]bool)
		aSet := make(map[uint32]bool)
		bSet := make(map[uint32]bool)
		for i := 0; i < 200; i++ {
			v := uint32(r.Intn(100))
			present[v] = true
			if r.Intn(2) == 0 {
				a.Insert(v)
				aSet[v] = true
			} else {
				b.Insert(v)
				bSet[v] = true
			}
		}
		want := 0
		for v := range aSet {
			if bSet[v] {
				want++
			}
		}
		if got := a.IntersectionLen(b); int(got) != want {
			t.Fatalf("trial %d: IntersectionLen() = %d, want %d", trial, got, want)
		}
	}
}

func TestEmptyBitmap(t *testing.T) {
	b := New()
	if got := b.Len(); got != 0 {
		t.Fatalf("Len() of empty bitmap = %d, want 0", got)
	}
	other := New()
	other.Insert(1)
	if got := b.IntersectionLen(other); got != 0 {
		t.Fatalf("IntersectionLen() with empty = %d, want 0", got)
	}
}
