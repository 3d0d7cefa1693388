package cmd

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/util/cliutil"
	"github.com/spf13/cobra"

	"github.com/trevor-schnegg/skim-go/internal/bitmap"
	"github.com/trevor-schnegg/skim-go/internal/distmatrix"
)

var extendDistancesCmd = &cobra.Command{
	Use:   "extend-distances",
	Short: "Extend a previously computed distance matrix with newly added reference files",
	Long: `Extend a previously computed distance matrix with newly added
reference files

--old-matrix must have been written by "skim pairwise-distances" (or a
prior "skim extend-distances") over exactly the first len(old) files of
--ref-dir, in the same sorted order; this command computes only the new
rows and writes the union as --out-file, carrying the old file2taxid
mapping forward and resolving new files against --mapping-file.
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
		oldMatrixPath := getFlagString(cmd, "old-matrix")
		if oldMatrixPath == "" {
			checkError(fmt.Errorf("flag --old-matrix needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		k := getFlagInt(cmd, "kmer-len")
		mappingFile := getFlagString(cmd, "mapping-file")

		oldNames, oldTaxIDs, oldMatrix := readPairwiseDistances(oldMatrixPath)
		log.Infof("loaded old matrix: %d files", len(oldNames))

		paths := scanReferenceDir(refDir)
		if len(paths) < len(oldNames) {
			checkError(fmt.Errorf("ref-dir has fewer files (%d) than the old matrix (%d)", len(paths), len(oldNames)))
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
		copy(taxIDs, oldTaxIDs)
		bitmaps := make([]*bitmap.Bitmap, len(paths))
		for i, path := range paths {
			names[i] = filepath.Base(path)
			if i < len(oldNames) && names[i] != oldNames[i] {
				checkError(fmt.Errorf("file order mismatch at index %d: old matrix has %q, ref-dir has %q", i, oldNames[i], names[i]))
			}
			if i >= len(oldNames) {
				taxIDs[i] = resolveTaxID(accession2taxid, names[i])
			}
			bitmaps[i] = bitmapFromFile(path, k, nil)
		}

		log.Infof("extending distance matrix with %d new file(s) ...", len(paths)-len(oldNames))
		extended := distmatrix.Extend(oldMatrix, bitmaps)

		writePairwiseDistances(outFile, names, taxIDs, extended)
	},
}

func init() {
	RootCmd.AddCommand(extendDistancesCmd)

	extendDistancesCmd.Flags().StringP("ref-dir", "i", "", "directory of reference FASTA/FASTQ files (old files first, in the same order as --old-matrix)")
	extendDistancesCmd.Flags().String("old-matrix", "", "distance matrix previously written by pairwise-distances")
	extendDistancesCmd.Flags().StringP("out-file", "o", "distances.pd", "output distance matrix path (.gz compresses)")
	extendDistancesCmd.Flags().IntP("kmer-len", "k", 15, "k-mer length")
	extendDistancesCmd.Flags().StringP("mapping-file", "m", "", "optional accession to taxid TSV for the newly added files")
}
