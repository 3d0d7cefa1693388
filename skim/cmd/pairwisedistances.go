package cmd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/util/cliutil"
	"github.com/spf13/cobra"

	"github.com/trevor-schnegg/skim-go/internal/bitmap"
	"github.com/trevor-schnegg/skim-go/internal/distmatrix"
	"github.com/trevor-schnegg/skim-go/internal/kmerutil"
)

var pairwiseDistancesCmd = &cobra.Command{
	Use:   "pairwise-distances",
	Short: "Compute the pairwise symmetric-difference distance matrix for a directory of references",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		timeStart := time.Now()
		defer func() {
			log.Info()
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}()

		refDir := getFlagString(cmd, "ref-dir")
		if refDir == "" {
			checkError(fmt.Errorf("flag -i/--ref-dir needed"))
		}
		refDir = expandPath(refDir)
		outFile := getFlagString(cmd, "out-file")
		k := getFlagInt(cmd, "kmer-len")
		mappingFile := getFlagString(cmd, "mapping-file")

		paths := scanReferenceDir(refDir)
		if len(paths) == 0 {
			checkError(fmt.Errorf("no reference files found under %s", refDir))
		}

		var accession2taxid map[string]string
		if mappingFile != "" {
			var err error
			accession2taxid, err = cliutil.ReadKVs(mappingFile, false)
			checkError(errors.Wrap(err, mappingFile))
			log.Infof("loaded %d accession -> taxid pairs", len(accession2taxid))
		}

		names := make([]string, len(paths))
		taxIDs := make([]uint64, len(paths))
		bitmaps := make([]*bitmap.Bitmap, len(paths))
		for i, path := range paths {
			names[i] = filepath.Base(path)
			taxIDs[i] = resolveTaxID(accession2taxid, names[i])
			bitmaps[i] = bitmapFromFile(path, k, nil)
		}

		log.Infof("computing pairwise distances over %d files ...", len(bitmaps))
		m := distmatrix.Build(bitmaps)

		writePairwiseDistances(outFile, names, taxIDs, m)
	},
}

func init() {
	RootCmd.AddCommand(pairwiseDistancesCmd)

	pairwiseDistancesCmd.Flags().StringP("ref-dir", "i", "", "directory of reference FASTA/FASTQ files")
	pairwiseDistancesCmd.Flags().StringP("out-file", "o", "distances.pd", "output distance matrix path (.gz compresses)")
	pairwiseDistancesCmd.Flags().IntP("kmer-len", "k", 15, "k-mer length")
	pairwiseDistancesCmd.Flags().StringP("mapping-file", "m", "", "optional accession to taxid TSV embedded in the output matrix")
}

// resolveTaxID looks up name in accession2taxid (which may be nil when no
// --mapping-file was given), defaulting to 0 when unresolved.
func resolveTaxID(accession2taxid map[string]string, name string) uint64 {
	if accession2taxid == nil {
		return 0
	}
	taxidStr, ok := lookupTaxID(accession2taxid, name)
	if !ok {
		return 0
	}
	taxid, err := strconv.ParseUint(taxidStr, 10, 64)
	checkError(errors.Wrapf(err, "taxid for %s", name))
	return taxid
}

// bitmapFromFile reads every record of path and inserts its canonical
// k-mers into a fresh bitmap. A record that fails to parse is logged and
// dropped rather than aborting the whole file.
func bitmapFromFile(path string, k int, syncmer *kmerutil.Syncmer) *bitmap.Bitmap {
	reader, err := fastx.NewDefaultReader(path)
	checkError(errors.Wrap(err, path))

	bm := bitmap.New()
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Warningf("%s: dropping malformed record: %s", path, err)
			continue
		}
		it := kmerutil.NewIterator(record.Seq.Seq, k, syncmer)
		for {
			kmer, ok := it.Next()
			if !ok {
				break
			}
			bm.Insert(uint32(kmer))
		}
	}
	return bm
}

// writePairwiseDistances persists the lower-triangular distance matrix
// together with its file2taxid mapping as a flat binary blob,
// little-endian throughout, mirroring skimindex's own split between
// human-readable metadata and a binary bank (here the whole thing is
// binary, since there is no metadata worth keeping human-readable).
func writePairwiseDistances(path string, names []string, taxIDs []uint64, m *distmatrix.Matrix) {
	outfh, gw, closer := outStream(path)
	defer func() {
		outfh.Flush()
		if gw != nil {
			gw.Close()
		}
		closer.Close()
	}()
	checkError(errors.Wrap(writeMatrixBody(outfh, names, taxIDs, m), path))
}

func writeMatrixBody(w *bufio.Writer, names []string, taxIDs []uint64, m *distmatrix.Matrix) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for i, name := range names {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(name))); err != nil {
			return err
		}
		if _, err := w.WriteString(name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, taxIDs[i]); err != nil {
			return err
		}
	}
	for i := range names {
		row := m.Rows[i]
		if err := binary.Write(w, binary.LittleEndian, uint32(len(row))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return nil
}

// readPairwiseDistances parses the binary format written by
// writePairwiseDistances.
func readPairwiseDistances(path string) ([]string, []uint64, *distmatrix.Matrix) {
	reader, closer, err := inStream(path)
	checkError(errors.Wrap(err, path))
	defer closer.Close()

	var n uint32
	checkError(errors.Wrap(binary.Read(reader, binary.LittleEndian, &n), path))

	names := make([]string, n)
	taxIDs := make([]uint64, n)
	for i := range names {
		var nameLen uint32
		checkError(errors.Wrap(binary.Read(reader, binary.LittleEndian, &nameLen), path))
		buf := make([]byte, nameLen)
		_, err := io.ReadFull(reader, buf)
		checkError(errors.Wrap(err, path))
		names[i] = string(buf)
		checkError(errors.Wrap(binary.Read(reader, binary.LittleEndian, &taxIDs[i]), path))
	}

	m := &distmatrix.Matrix{Rows: make([][]uint32, n)}
	for i := range m.Rows {
		var rowLen uint32
		checkError(errors.Wrap(binary.Read(reader, binary.LittleEndian, &rowLen), path))
		row := make([]uint32, rowLen)
		checkError(errors.Wrap(binary.Read(reader, binary.LittleEndian, row), path))
		m.Rows[i] = row
	}
	return names, taxIDs, m
}
