package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/util/bytesize"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"

	"github.com/trevor-schnegg/skim-go/internal/bitmap"
	"github.com/trevor-schnegg/skim-go/internal/kmerutil"
	"github.com/trevor-schnegg/skim-go/internal/sharding"
	"github.com/trevor-schnegg/skim-go/internal/skimindex"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a k-mer index from a directory of reference genomes",
	Long: `Build a k-mer index from a directory of reference genomes

Every (gzipped) FASTA/FASTQ file under --ref-dir becomes one file entry
in the index, unless its k-mer count exceeds --shard-threshold, in
which case it is split into overlapping fragments first so that no
single entry dominates the run-length-encoded bank.
`,
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

		outDir := expandPath(getFlagString(cmd, "out-dir"))
		k := getFlagInt(cmd, "kmer-len")
		syncmerS := getFlagInt(cmd, "syncmer-s")
		syncmerT := getFlagInt(cmd, "syncmer-t")
		var syncmer *kmerutil.Syncmer
		if syncmerS > 0 {
			syncmer = &kmerutil.Syncmer{S: syncmerS, T: syncmerT}
		}

		thresholdStr := getFlagString(cmd, "shard-threshold")
		thresholdFloat, err := bytesize.ParseByteSize(thresholdStr)
		checkError(errors.Wrapf(err, "flag --shard-threshold: %s", thresholdStr))
		shardThreshold := int(thresholdFloat)

		overlapLen := getFlagInt(cmd, "overlap-len")
		compressionLevel := getFlagInt(cmd, "compression-level")
		nFixed := getFlagUint64(cmd, "n-fixed")

		if err := checkDirExists(refDir); err != nil {
			checkError(errors.Wrap(err, refDir))
		}
		if err := ensureDirExists(outDir); err != nil {
			checkError(errors.Wrap(err, outDir))
		}

		log.Infof("scanning reference directory: %s", refDir)
		paths := scanReferenceDir(refDir)
		if len(paths) == 0 {
			checkError(fmt.Errorf("no reference files found under %s", refDir))
		}
		log.Infof("  %d reference file(s) found", len(paths))

		kmerCounter := func(seq []byte) int {
			count := 0
			it := kmerutil.NewIterator(seq, k, syncmer)
			for {
				if _, ok := it.Next(); !ok {
					break
				}
				count++
			}
			return count
		}

		var files []string
		var taxIDs []uint64
		var bitmaps []*bitmap.Bitmap

		pbs := mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar := pbs.AddBar(int64(len(paths)),
			mpb.PrependDecorators(
				decor.Name("building per-file bitmaps: ", decor.WC{W: len("building per-file bitmaps: "), C: decor.DidentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
		)

		for _, path := range paths {
			records, err := readAllRecords(path)
			checkError(errors.Wrap(err, path))

			file := sharding.FileEntry{
				Name:    filepath.Base(path),
				Records: records,
			}
			for _, shard := range sharding.ShardFile(file, shardThreshold, overlapLen, kmerCounter) {
				bm := bitmap.New()
				for _, r := range shard.Records {
					it := kmerutil.NewIterator(r.Seq, k, syncmer)
					for {
						kmer, ok := it.Next()
						if !ok {
							break
						}
						bm.Insert(uint32(kmer))
					}
				}
				files = append(files, shard.Name)
				taxIDs = append(taxIDs, shard.TaxID)
				bitmaps = append(bitmaps, bm)
			}
			bar.Increment()
		}
		pbs.Wait()

		log.Infof("%d file entries after sharding", len(files))
		warnDuplicateNames(files)

		log.Info("transposing into the k-mer -> RLE bank ...")
		idx := skimindex.Build(bitmaps, files, taxIDs, k, syncmer)

		if compressionLevel > 0 {
			log.Infof("lossy-compressing at level %d ...", compressionLevel)
			idx.LossyCompress(compressionLevel)
		}

		log.Infof("computing lookup table for n_fixed=%d ...", nFixed)
		idx.ComputeLookupTable(nFixed)

		infoPath := filepath.Join(outDir, "info.yaml")
		binPath := filepath.Join(outDir, "index.bin")
		log.Infof("writing index: %s, %s", infoPath, binPath)
		checkError(idx.WriteTo(infoPath, binPath))
	},
}

func init() {
	RootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("ref-dir", "i", "", "directory of reference FASTA/FASTQ files")
	buildCmd.Flags().StringP("out-dir", "o", "skim-db", "output index directory")
	buildCmd.Flags().IntP("kmer-len", "k", 15, "k-mer length")
	buildCmd.Flags().Int("syncmer-s", 0, "syncmer s-mer length (0 disables syncmer filtering)")
	buildCmd.Flags().Int("syncmer-t", 0, "required offset of the minimal s-mer within the k-mer")
	buildCmd.Flags().String("shard-threshold", "10M", "max k-mers per file entry before sharding")
	buildCmd.Flags().Int("overlap-len", 100, "overlap length between sharded fragments")
	buildCmd.Flags().Int("compression-level", 0, "lossy RLE compression level (0 disables)")
	buildCmd.Flags().Uint64("n-fixed", 1000, "fixed read length the lookup table is computed for")
}

func readAllRecords(path string) ([]sharding.Record, error) {
	reader, err := fastx.NewDefaultReader(path)
	if err != nil {
		return nil, err
	}
	var records []sharding.Record
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Warningf("%s: dropping malformed record: %s", path, err)
			continue
		}
		id := make([]byte, len(record.ID))
		copy(id, record.ID)
		seqBytes := make([]byte, len(record.Seq.Seq))
		copy(seqBytes, record.Seq.Seq)
		records = append(records, sharding.Record{ID: string(id), Seq: seqBytes})
	}
	return records, nil
}

// warnDuplicateNames logs a warning for every file-entry name that
// collides with an earlier one under xxhash, so a build that accidentally
// ingests the same accession twice (e.g. present under two ref-dir
// subdirectories) is caught before it silently doubles that file's
// apparent k-mer weight in the index.
func warnDuplicateNames(names []string) {
	seen := make(map[uint64]string, len(names))
	for _, name := range names {
		h := xxhash.Sum64String(name)
		if prev, ok := seen[h]; ok {
			if prev == name {
				log.Warningf("duplicate file entry name: %q", name)
			} else {
				log.Warningf("hash collision between file entries %q and %q", prev, name)
			}
			continue
		}
		seen[h] = name
	}
}
