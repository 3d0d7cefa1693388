package cmd

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trevor-schnegg/skim-go/internal/skimindex"
)

var fixDatabaseCmd = &cobra.Command{
	Use:   "fix-database",
	Short: "Recompute p-values and the lookup table of a persisted index",
	Long: `Recompute p-values and the lookup table of a persisted index

A maintenance command for indexes whose RLE bank was hand-edited, or
that were written before a p-value computation fix, or whose --n-fixed
needs to change; it reloads the index, reruns RecomputePValues and
ComputeLookupTable, and rewrites it in place.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		runtime.GOMAXPROCS(opt.NumCPUs)

		timeStart := time.Now()
		defer func() {
			log.Info()
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}()

		dbDir := getFlagString(cmd, "db-dir")
		if dbDir == "" {
			checkError(fmt.Errorf("flag -d/--db-dir needed"))
		}
		dbDir = expandPath(dbDir)
		nFixed := getFlagUint64(cmd, "n-fixed")

		infoPath := filepath.Join(dbDir, "info.yaml")
		binPath := filepath.Join(dbDir, "index.bin")

		log.Infof("loading index: %s", dbDir)
		idx, err := skimindex.ReadFrom(infoPath, binPath)
		checkError(errors.Wrap(err, dbDir))

		log.Info("recomputing p-values ...")
		idx.RecomputePValues()

		if nFixed == 0 {
			nFixed = idx.NFixed
		}
		log.Infof("recomputing lookup table for n_fixed=%d ...", nFixed)
		idx.ComputeLookupTable(nFixed)

		log.Infof("rewriting index: %s, %s", infoPath, binPath)
		checkError(idx.WriteTo(infoPath, binPath))
	},
}

func init() {
	RootCmd.AddCommand(fixDatabaseCmd)

	fixDatabaseCmd.Flags().StringP("db-dir", "d", "", "index directory to fix in place")
	fixDatabaseCmd.Flags().Uint64("n-fixed", 0, "fixed read length to recompute the lookup table for (0 keeps the existing value)")
}
