package skimindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/trevor-schnegg/skim-go/internal/binomial"
	"github.com/trevor-schnegg/skim-go/internal/kmerutil"
	"github.com/trevor-schnegg/skim-go/internal/rle"
)

// Metadata is the YAML-serialized side of a persisted index: file names,
// taxids, k-mer and syncmer parameters, p-values and n_fixed. The k-mer ->
// RLE bank is dumped as a flat binary blob alongside it; the lookup table
// is not persisted. This mirrors kmcp's split between a human-readable
// __db.yml and its bulky binary index files.
type Metadata struct {
	Files      []string  `yaml:"files"`
	TaxIDs     []uint64  `yaml:"tax-ids"`
	KmerLen    int       `yaml:"kmer-len"`
	SyncmerS   int       `yaml:"syncmer-s,omitempty"`
	SyncmerT   int       `yaml:"syncmer-t,omitempty"`
	HasSyncmer bool      `yaml:"has-syncmer"`
	PValues    []float64 `yaml:"p-values"`
	NFixed     uint64    `yaml:"n-fixed"`
}

// WriteTo persists the index as two files: infoPath (YAML metadata) and
// binPath (the binary k-mer -> RLE bank, little-endian throughout).
func (idx *Index) WriteTo(infoPath, binPath string) error {
	meta := Metadata{
		Files:   idx.Files,
		TaxIDs:  idx.TaxIDs,
		KmerLen: idx.KmerLen,
		PValues: idx.PValues,
		NFixed:  idx.NFixed,
	}
	if idx.Syncmer != nil {
		meta.HasSyncmer = true
		meta.SyncmerS = idx.Syncmer.S
		meta.SyncmerT = idx.Syncmer.T
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, infoPath)
	}
	if err := os.WriteFile(infoPath, data, 0644); err != nil {
		return errors.Wrap(err, infoPath)
	}

	f, err := os.Create(binPath)
	if err != nil {
		return errors.Wrap(err, binPath)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx.KmerToRLEIndex))); err != nil {
		return errors.Wrap(err, binPath)
	}
	for kmer, rleIdx := range idx.KmerToRLEIndex {
		if err := binary.Write(w, binary.LittleEndian, kmer); err != nil {
			return errors.Wrap(err, binPath)
		}
		if err := binary.Write(w, binary.LittleEndian, rleIdx); err != nil {
			return errors.Wrap(err, binPath)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(idx.RLEs))); err != nil {
		return errors.Wrap(err, binPath)
	}
	for _, r := range idx.RLEs {
		raw := r.RawBlocks()
		if err := binary.Write(w, binary.LittleEndian, uint32(len(raw))); err != nil {
			return errors.Wrap(err, binPath)
		}
		if err := binary.Write(w, binary.LittleEndian, raw); err != nil {
			return errors.Wrap(err, binPath)
		}
	}

	return w.Flush()
}

// ReadFrom loads an index previously written by WriteTo, buffering the
// binary file through a regular read. The lookup table is not
// persisted; callers must call ComputeLookupTable again.
func ReadFrom(infoPath, binPath string) (*Index, error) {
	meta, err := readMetadata(infoPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(binPath)
	if err != nil {
		return nil, errors.Wrap(err, binPath)
	}
	defer f.Close()

	kmerToRLEIndex, rles, err := decodeBinary(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrap(err, binPath)
	}
	return buildIndex(meta, kmerToRLEIndex, rles), nil
}

// ReadFromMmap loads an index the same way as ReadFrom, except the
// binary RLE bank is memory-mapped read-only and decoded from the mapping
// rather than through a buffered file reader (mirroring the --low-mem/mmap
// toggle of a bloom-filter index load). The whole bank is still decoded
// into heap-allocated maps and RLEs, so the loaded index uses as much
// memory as with ReadFrom. Callers must call Close on the returned closer once the
// index is no longer needed, to unmap the backing file.
func ReadFromMmap(infoPath, binPath string) (*Index, io.Closer, error) {
	meta, err := readMetadata(infoPath)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(binPath)
	if err != nil {
		return nil, nil, errors.Wrap(err, binPath)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, binPath)
	}

	kmerToRLEIndex, rles, err := decodeBinary(bytes.NewReader(m))
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, nil, errors.Wrap(err, binPath)
	}

	idx := buildIndex(meta, kmerToRLEIndex, rles)
	return idx, mmapCloser{m: m, f: f}, nil
}

type mmapCloser struct {
	m mmap.MMap
	f *os.File
}

func (c mmapCloser) Close() error {
	if err := c.m.Unmap(); err != nil {
		return err
	}
	return c.f.Close()
}

func readMetadata(infoPath string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return meta, errors.Wrap(err, infoPath)
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, errors.Wrap(err, infoPath)
	}
	return meta, nil
}

// decodeBinary reads the k-mer -> RLE bank format written by WriteTo
// from r, which may be a buffered file reader or a memory-mapped byte
// slice wrapped in a bytes.Reader.
func decodeBinary(r io.Reader) (map[uint32]uint32, []*rle.RunLengthEncoding, error) {
	var numKmers uint32
	if err := binary.Read(r, binary.LittleEndian, &numKmers); err != nil {
		return nil, nil, err
	}
	kmerToRLEIndex := make(map[uint32]uint32, numKmers)
	for i := uint32(0); i < numKmers; i++ {
		var kmer, rleIdx uint32
		if err := binary.Read(r, binary.LittleEndian, &kmer); err != nil {
			return nil, nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &rleIdx); err != nil {
			return nil, nil, err
		}
		kmerToRLEIndex[kmer] = rleIdx
	}

	var numRLEs uint32
	if err := binary.Read(r, binary.LittleEndian, &numRLEs); err != nil {
		return nil, nil, err
	}
	rles := make([]*rle.RunLengthEncoding, numRLEs)
	for i := uint32(0); i < numRLEs; i++ {
		var blockCount uint32
		if err := binary.Read(r, binary.LittleEndian, &blockCount); err != nil {
			return nil, nil, err
		}
		raw := make([]uint16, blockCount)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, nil, err
		}
		rles[i] = rle.FromRawBlocks(raw)
	}
	return kmerToRLEIndex, rles, nil
}

func buildIndex(meta Metadata, kmerToRLEIndex map[uint32]uint32, rles []*rle.RunLengthEncoding) *Index {
	var syncmer *kmerutil.Syncmer
	if meta.HasSyncmer {
		syncmer = &kmerutil.Syncmer{S: meta.SyncmerS, T: meta.SyncmerT}
	}
	return &Index{
		Files:          meta.Files,
		TaxIDs:         meta.TaxIDs,
		KmerLen:        meta.KmerLen,
		Syncmer:        syncmer,
		KmerToRLEIndex: kmerToRLEIndex,
		RLEs:           rles,
		PValues:        meta.PValues,
		NFixed:         meta.NFixed,
		Consts:         newConstsFor(meta.NFixed),
	}
}

func newConstsFor(nFixed uint64) *binomial.Consts {
	bound := int(nFixed)
	if bound < 4096 {
		bound = 4096
	}
	return binomial.NewConsts(bound)
}
