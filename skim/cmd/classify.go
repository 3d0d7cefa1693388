package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"

	"github.com/trevor-schnegg/skim-go/internal/bigexpfloat"
	"github.com/trevor-schnegg/skim-go/internal/classify"
	"github.com/trevor-schnegg/skim-go/internal/skimindex"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify reads against a built index",
	Long: `Classify reads against a built index

Reads a FASTQ file, scores every read against the index concurrently
across --threads worker goroutines, and writes one ".r2f" line per
read: "C\t<read_id>\t<taxid>\t<file_name>\n" on a match, or
"U\t<read_id>\t0\t-\n" on rejection. Unclassified reads are omitted
unless --keep-unclassified is given.
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

		inFile := getFlagString(cmd, "in-file")
		if inFile == "" {
			checkError(fmt.Errorf("flag -i/--in-file needed"))
		}
		outFile := getFlagString(cmd, "out-file")
		cutoffStr := getFlagString(cmd, "cutoff")
		keepUnclassified := getFlagBool(cmd, "keep-unclassified")
		lowMem := getFlagBool(cmd, "low-mem")

		cutoffFloat, err := strconv.ParseFloat(cutoffStr, 64)
		checkError(errors.Wrapf(err, "flag --cutoff: %s", cutoffStr))
		cutoff := bigexpfloat.FromF64(cutoffFloat)

		infoPath := filepath.Join(dbDir, "info.yaml")
		binPath := filepath.Join(dbDir, "index.bin")

		var idx *skimindex.Index
		if lowMem {
			log.Infof("loading index with mmap enabled: %s", dbDir)
			var mapCloser io.Closer
			idx, mapCloser, err = skimindex.ReadFromMmap(infoPath, binPath)
			checkError(errors.Wrap(err, dbDir))
			defer mapCloser.Close()
		} else {
			log.Infof("loading index: %s", dbDir)
			idx, err = skimindex.ReadFrom(infoPath, binPath)
			checkError(errors.Wrap(err, dbDir))
		}
		log.Infof("computing lookup table for n_fixed=%d ...", idx.NFixed)
		idx.ComputeLookupTable(idx.NFixed)
		log.Infof("  %d file entries, k=%d", idx.NumFiles(), idx.KmerLen)

		reader, err := fastx.NewDefaultReader(inFile)
		checkError(errors.Wrap(err, inFile))

		outfh, gw, closer := outStream(outFile)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			closer.Close()
		}()

		type job struct {
			id  string
			seq []byte
		}
		type result struct {
			id string
			r  classify.Result
		}

		jobs := make(chan job, 1024)
		results := make(chan result, 1024)

		var wg sync.WaitGroup
		for w := 0; w < opt.NumCPUs; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range jobs {
					results <- result{id: j.id, r: classify.Classify(idx, j.seq, cutoff)}
				}
			}()
		}

		done := make(chan struct{})
		var total, matched uint64
		go func() {
			for res := range results {
				total++
				if !res.r.Matched {
					if keepUnclassified {
						outfh.WriteString("U\t")
						outfh.WriteString(res.id)
						outfh.WriteString("\t0\t-\n")
					}
					continue
				}
				matched++
				outfh.WriteString("C\t")
				outfh.WriteString(res.id)
				outfh.WriteByte('\t')
				outfh.WriteString(strconv.FormatUint(res.r.TaxID, 10))
				outfh.WriteByte('\t')
				outfh.WriteString(res.r.File)
				outfh.WriteByte('\n')
			}
			close(done)
		}()

		for {
			record, err := reader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				log.Warningf("%s: dropping malformed record: %s", inFile, err)
				continue
			}
			id := make([]byte, len(record.ID))
			copy(id, record.ID)
			seqBytes := make([]byte, len(record.Seq.Seq))
			copy(seqBytes, record.Seq.Seq)
			jobs <- job{id: string(id), seq: seqBytes}
		}
		close(jobs)
		wg.Wait()
		close(results)
		<-done

		log.Infof("classified %d / %d reads", matched, total)
	},
}

func init() {
	RootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringP("db-dir", "d", "", "index directory written by \"skim build\"")
	classifyCmd.Flags().StringP("in-file", "i", "", "FASTQ file to classify")
	classifyCmd.Flags().StringP("out-file", "o", "out.r2f", "output .r2f path (.gz compresses)")
	classifyCmd.Flags().String("cutoff", "1e-9", "maximum p-value accepted as a match")
	classifyCmd.Flags().Bool("keep-unclassified", false, "emit a line for unclassified reads too")
	classifyCmd.Flags().Bool("low-mem", false, "memory-map the index's RLE bank instead of buffering it")
}
