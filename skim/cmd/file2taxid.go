package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/util/cliutil"
	"github.com/spf13/cobra"

	"github.com/trevor-schnegg/skim-go/internal/skimindex"
)

var file2taxidCmd = &cobra.Command{
	Use:   "file2taxid",
	Short: "Build (and optionally apply) a reference-file to taxid map",
	Long: `Build (and optionally apply) a reference-file to taxid map

--mapping-file is a two-column TSV of accession (or file name) to
taxid, such as an NCBI assembly_summary.txt subset. Every file under
--ref-dir is looked up by its base name (and, failing that, by the
longest accession prefix found in --mapping-file) and written to
--out-file as "<file>\t<taxid>\n". With --db-dir set, every resolved
pair is additionally applied to the persisted index via
Index.UpdateTaxID and the index is rewritten in place.
`,
	Run: func(cmd *cobra.Command, args []string) {
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
		mappingFile := getFlagString(cmd, "mapping-file")
		if mappingFile == "" {
			checkError(fmt.Errorf("flag -m/--mapping-file needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		dbDir := getFlagString(cmd, "db-dir")
		allowMissing := getFlagBool(cmd, "allow-missing-taxid")

		accession2taxid, err := cliutil.ReadKVs(mappingFile, false)
		checkError(errors.Wrap(err, mappingFile))
		log.Infof("loaded %d accession -> taxid pairs", len(accession2taxid))

		paths := scanReferenceDir(refDir)

		outfh, gw, closer := outStream(outFile)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			closer.Close()
		}()

		resolved := make(map[string]uint64, len(paths))
		unresolved := 0
		for _, path := range paths {
			name := filepath.Base(path)
			taxidStr, ok := lookupTaxID(accession2taxid, name)
			if !ok {
				unresolved++
				continue
			}
			taxid, err := strconv.ParseUint(taxidStr, 10, 64)
			checkError(errors.Wrapf(err, "taxid for %s", name))

			resolved[name] = taxid
			outfh.WriteString(name)
			outfh.WriteByte('\t')
			outfh.WriteString(taxidStr)
			outfh.WriteByte('\n')
		}
		if unresolved > 0 {
			if !allowMissing {
				checkError(fmt.Errorf("%d file(s) had no matching taxid in %s; pass --allow-missing-taxid to continue anyway", unresolved, mappingFile))
			}
			log.Warningf("%d file(s) had no matching taxid", unresolved)
		}
		log.Infof("resolved %d / %d files", len(resolved), len(paths))

		if dbDir == "" {
			return
		}
		dbDir = expandPath(dbDir)
		infoPath := filepath.Join(dbDir, "info.yaml")
		binPath := filepath.Join(dbDir, "index.bin")

		log.Infof("loading index: %s", dbDir)
		idx, err := skimindex.ReadFrom(infoPath, binPath)
		checkError(errors.Wrap(err, dbDir))

		updated := 0
		for name, taxid := range resolved {
			updated += idx.UpdateTaxID(name, taxid)
		}
		log.Infof("updated %d index entries", updated)

		checkError(idx.WriteTo(infoPath, binPath))
	},
}

func init() {
	RootCmd.AddCommand(file2taxidCmd)

	file2taxidCmd.Flags().StringP("ref-dir", "i", "", "directory of reference FASTA/FASTQ files")
	file2taxidCmd.Flags().StringP("mapping-file", "m", "", "two-column TSV of accession to taxid")
	file2taxidCmd.Flags().StringP("out-file", "o", "out.f2t", "output file2taxid TSV path (.gz compresses)")
	file2taxidCmd.Flags().StringP("db-dir", "d", "", "index directory to patch in place (optional)")
	file2taxidCmd.Flags().Bool("allow-missing-taxid", false, "warn instead of aborting when a file has no matching taxid")
}

// lookupTaxID resolves name against accession2taxid by exact match, then
// by the longest key that is a prefix of name (accession.version vs
// bare accession, or an accession embedded in a longer file name).
func lookupTaxID(accession2taxid map[string]string, name string) (string, bool) {
	if v, ok := accession2taxid[name]; ok {
		return v, true
	}
	best := ""
	bestLen := 0
	for k, v := range accession2taxid {
		if len(k) > bestLen && len(name) >= len(k) && name[:len(k)] == k {
			best = v
			bestLen = len(k)
		}
	}
	return best, bestLen > 0
}
