package sharding

import (
	"bytes"
	"testing"
)

func repeatSeq(n int) []byte {
	out := make([]byte, n)
	bases := []byte("ACGT")
	for i := range out {
		out[i] = bases[i%4]
	}
	return out
}

func TestSplitRecordCoversWholeSequenceWithOverlap(t *testing.T) {
	record := Record{ID: "r1", Seq: repeatSeq(1000)}
	fragments := SplitRecord(record, 300, 40)

	if len(fragments) < 3 {
		t.Fatalf("expected at least 3 fragments for a 1000bp record split at 300bp, got %d", len(fragments))
	}
	for _, f := range fragments {
		if f.ID != "r1" {
			t.Fatalf("fragment ID = %q, want r1", f.ID)
		}
	}
	// Every fragment must be a substring of the original record.
	for i := 1; i < len(fragments); i++ {
		prev, cur := fragments[i-1], fragments[i]
		if !bytes.Contains(record.Seq, prev.Seq) || !bytes.Contains(record.Seq, cur.Seq) {
			t.Fatalf("fragment %d not a substring of the original record", i)
		}
	}
	// Each cut is overlapped by overlapLen/2 bases on both sides, so the
	// fragments cover the record once plus overlapLen bases per cut.
	total := 0
	for _, f := range fragments {
		total += len(f.Seq)
	}
	if want := len(record.Seq) + (len(fragments)-1)*40; total != want {
		t.Fatalf("fragments cover %d bases in total, want %d", total, want)
	}
}

func TestSplitRecordShortSequenceIsSingleFragment(t *testing.T) {
	record := Record{ID: "short", Seq: repeatSeq(50)}
	fragments := SplitRecord(record, 300, 40)
	if len(fragments) != 1 {
		t.Fatalf("expected 1 fragment for a sequence shorter than maxLen, got %d", len(fragments))
	}
	if !bytes.Equal(fragments[0].Seq, record.Seq) {
		t.Fatalf("single fragment should cover the whole short sequence")
	}
}

func countKmersByLength(seq []byte) int {
	if len(seq) < 14 {
		return 0
	}
	return len(seq) - 14 + 1
}

func TestShardFileUnderThresholdIsUnsplit(t *testing.T) {
	file := FileEntry{
		Name:    "small.fna",
		TaxID:   7,
		Records: []Record{{ID: "r1", Seq: repeatSeq(100)}},
	}
	shards := ShardFile(file, 10000, 40, countKmersByLength)
	if len(shards) != 1 {
		t.Fatalf("expected 1 shard for a file under threshold, got %d", len(shards))
	}
	if shards[0].Name != "small.fna" {
		t.Fatalf("unsplit file should keep its original name, got %q", shards[0].Name)
	}
}

func TestShardFileOverThresholdSplitsIntoMultipleNamedFragments(t *testing.T) {
	file := FileEntry{
		Name:  "big.fna",
		TaxID: 9,
		Records: []Record{
			{ID: "r1", Seq: repeatSeq(500)},
			{ID: "r2", Seq: repeatSeq(500)},
		},
	}
	shards := ShardFile(file, 400, 40, countKmersByLength)
	if len(shards) < 2 {
		t.Fatalf("expected multiple shards for an oversized file, got %d", len(shards))
	}
	seen := map[string]bool{}
	for _, s := range shards {
		if s.TaxID != 9 {
			t.Fatalf("shard %q lost the original taxid", s.Name)
		}
		if seen[s.Name] {
			t.Fatalf("duplicate shard name %q", s.Name)
		}
		seen[s.Name] = true
		if len(s.Records) == 0 {
			t.Fatalf("shard %q has no records", s.Name)
		}
	}
}
