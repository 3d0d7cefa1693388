// Package sharding splits oversized reference files and records into
// overlapping fragments at build time, so no single "file" entry in the
// index carries an unreasonable share of the total k-mer space.
package sharding

import "strconv"

// Record is a minimal FASTA record: an identifier and its raw sequence.
type Record struct {
	ID  string
	Seq []byte
}

// SplitRecord divides record into ceil(len(seq)/maxLen) roughly equal
// fragments, each extended by overlapLen/2 bases past every shared edge, so
// that neighboring fragments share 2*(overlapLen/2) bases. A record shorter
// than maxLen is returned as a single
// fragment covering the whole sequence.
func SplitRecord(record Record, maxLen, overlapLen int) []Record {
	halfOverlap := overlapLen / 2
	seqLen := len(record.Seq)

	numFragments := ceilDiv(seqLen, maxLen)
	if numFragments < 1 {
		numFragments = 1
	}
	fragmentLen := ceilDiv(seqLen, numFragments)

	fragments := make([]Record, 0, numFragments)
	for fi := 0; fi < numFragments; fi++ {
		start := fi * fragmentLen
		startWithOverlap := start
		if start != 0 {
			startWithOverlap = start - halfOverlap
		}
		endWithOverlap := start + fragmentLen + halfOverlap
		if endWithOverlap > seqLen {
			endWithOverlap = seqLen
		}

		fragments = append(fragments, Record{
			ID:  record.ID,
			Seq: record.Seq[startWithOverlap:endWithOverlap],
		})
	}
	return fragments
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// FileEntry is a reference file as seen by the sharding pass: an
// identifier, an optional taxid, and its records.
type FileEntry struct {
	Name    string
	TaxID   uint64
	Records []Record
}

// kmerCounter is supplied by the caller: shards only need to know how many
// distinct k-mers a record or file contributes, not how to compute it.
type kmerCounter func(seq []byte) int

// ShardFile splits file into one or more FileEntry fragments if its total
// k-mer count exceeds threshold. Records whose own k-mer count exceeds
// threshold are further split via SplitRecord with the given overlap;
// records under threshold are grouped, in order, into fragments that stay
// under threshold. A file already under threshold is returned unsplit.
func ShardFile(file FileEntry, threshold int, overlapLen int, countKmers kmerCounter) []FileEntry {
	total := 0
	for _, r := range file.Records {
		total += countKmers(r.Seq)
	}
	if total <= threshold {
		return []FileEntry{file}
	}

	var fragments []FileEntry
	fragIndex := 0
	newFragment := func() *FileEntry {
		fragIndex++
		fragments = append(fragments, FileEntry{
			Name:  fragmentName(file.Name, fragIndex),
			TaxID: file.TaxID,
		})
		return &fragments[len(fragments)-1]
	}

	current := newFragment()
	currentCount := 0

	appendRecord := func(r Record, count int) {
		if currentCount > 0 && currentCount+count > threshold {
			current = newFragment()
			currentCount = 0
		}
		current.Records = append(current.Records, r)
		currentCount += count
	}

	for _, r := range file.Records {
		count := countKmers(r.Seq)
		if count <= threshold {
			appendRecord(r, count)
			continue
		}
		for _, piece := range SplitRecord(r, threshold, overlapLen) {
			pieceCount := countKmers(piece.Seq)
			appendRecord(piece, pieceCount)
		}
	}

	// newFragment() is only called just before a record is appended, so no
	// fragment should be empty; a trailing empty one is dropped defensively.
	if len(fragments) > 0 && len(fragments[len(fragments)-1].Records) == 0 {
		fragments = fragments[:len(fragments)-1]
	}

	return fragments
}

func fragmentName(base string, index int) string {
	return base + "#" + strconv.Itoa(index)
}
