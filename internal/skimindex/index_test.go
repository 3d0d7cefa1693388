package skimindex

import (
	"path/filepath"
	"testing"

	"github.com/trevor-schnegg/skim-go/internal/bitmap"
	"github.com/trevor-schnegg/skim-go/internal/kmerutil"
)

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	k := 4

	a := bitmap.New()
	for _, v := range []uint32{0, 1, 2, 3, 4} {
		a.Insert(v)
	}
	b := bitmap.New()
	for _, v := range []uint32{4, 5, 6} {
		b.Insert(v)
	}

	idx := Build([]*bitmap.Bitmap{a, b}, []string{"fileA", "fileB"}, []uint64{10, 20}, k, nil)
	return idx
}

func TestBuildAssignsEveryKmerAnRLEIndex(t *testing.T) {
	idx := buildTestIndex(t)
	want := map[uint32][]int{
		0: {0},
		1: {0},
		2: {0},
		3: {0},
		4: {0, 1},
		5: {1},
		6: {1},
	}
	for kmer, files := range want {
		rleIdx, ok := idx.KmerToRLEIndex[kmer]
		if !ok {
			t.Fatalf("kmer %d missing from index", kmer)
		}
		got := idx.RLEs[rleIdx].CollectIndices()
		if len(got) != len(files) {
			t.Fatalf("kmer %d: got files %v, want %v", kmer, got, files)
		}
		for i, f := range files {
			if int(got[i]) != f {
				t.Fatalf("kmer %d: got files %v, want %v", kmer, got, files)
			}
		}
	}
}

func TestTotalKmersNoSyncmer(t *testing.T) {
	// For k=2 with no syncmer filter, canonical k-mers are those <= their
	// own reverse complement; brute force over all 16 2-bit-pair values.
	got := TotalKmers(2, nil)
	if got <= 0 || got > 16 {
		t.Fatalf("TotalKmers(2, nil) = %d, out of plausible range", got)
	}
}

func TestTotalKmersCached(t *testing.T) {
	a := TotalKmers(6, nil)
	b := TotalKmers(6, nil)
	if a != b {
		t.Fatalf("TotalKmers not stable across calls: %d != %d", a, b)
	}
}

func TestTotalKmersWithSyncmerIsSmaller(t *testing.T) {
	full := TotalKmers(8, nil)
	filtered := TotalKmers(8, &kmerutil.Syncmer{S: 6, T: 0})
	if filtered >= full {
		t.Fatalf("syncmer-filtered total (%d) should be smaller than unfiltered (%d)", filtered, full)
	}
}

func TestComputeLookupTableMatchesDimensions(t *testing.T) {
	idx := buildTestIndex(t)
	idx.ComputeLookupTable(10)
	want := idx.NumFiles() * 11
	if len(idx.LookupTable) != want {
		t.Fatalf("LookupTable has %d entries, want %d", len(idx.LookupTable), want)
	}
	for _, v := range idx.LookupTable {
		f := v.AsF64()
		if f < 0 || f > 1+1e-9 {
			t.Fatalf("lookup table entry %v out of [0,1]", f)
		}
	}
}

func TestUpdateTaxIDUpdatesAllMatches(t *testing.T) {
	idx := Build(
		[]*bitmap.Bitmap{bitmap.New(), bitmap.New(), bitmap.New()},
		[]string{"shared", "other", "shared"},
		[]uint64{1, 2, 3},
		4, nil,
	)
	count := idx.UpdateTaxID("shared", 99)
	if count != 2 {
		t.Fatalf("UpdateTaxID matched %d entries, want 2", count)
	}
	if idx.TaxIDs[0] != 99 || idx.TaxIDs[2] != 99 {
		t.Fatalf("UpdateTaxID did not update both matching entries: %v", idx.TaxIDs)
	}
	if idx.TaxIDs[1] != 2 {
		t.Fatalf("UpdateTaxID modified a non-matching entry: %v", idx.TaxIDs)
	}
}

func TestLossyCompressionNeverIncreasesPValues(t *testing.T) {
	idx := buildTestIndex(t)
	before := append([]float64(nil), idx.PValues...)
	idx.LossyCompress(3)
	for i, p := range idx.PValues {
		if p > before[i]+1e-12 {
			t.Fatalf("file %d: p-value increased after lossy compression: %v -> %v", i, before[i], p)
		}
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	idx := buildTestIndex(t)
	idx.ComputeLookupTable(5)

	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.yaml")
	binPath := filepath.Join(dir, "index.bin")

	if err := idx.WriteTo(infoPath, binPath); err != nil {
		t.Fatalf("WriteTo() error: %v", err)
	}

	loaded, err := ReadFrom(infoPath, binPath)
	if err != nil {
		t.Fatalf("ReadFrom() error: %v", err)
	}

	if len(loaded.Files) != len(idx.Files) {
		t.Fatalf("loaded.Files = %v, want %v", loaded.Files, idx.Files)
	}
	for i := range idx.Files {
		if loaded.Files[i] != idx.Files[i] || loaded.TaxIDs[i] != idx.TaxIDs[i] {
			t.Fatalf("loaded file/taxid mismatch at %d", i)
		}
	}
	if loaded.KmerLen != idx.KmerLen {
		t.Fatalf("loaded.KmerLen = %d, want %d", loaded.KmerLen, idx.KmerLen)
	}
	for kmer, wantIdx := range idx.KmerToRLEIndex {
		gotIdx, ok := loaded.KmerToRLEIndex[kmer]
		if !ok {
			t.Fatalf("loaded index missing kmer %d", kmer)
		}
		want := idx.RLEs[wantIdx].CollectIndices()
		got := loaded.RLEs[gotIdx].CollectIndices()
		if len(want) != len(got) {
			t.Fatalf("kmer %d: loaded RLE %v, want %v", kmer, got, want)
		}
	}
}
