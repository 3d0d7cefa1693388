package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
)

var avgQualityScoreCmd = &cobra.Command{
	Use:   "avg-quality-score",
	Short: "Report the mean raw quality-string byte value of every read in a FASTQ file",
	Long: `Report the mean raw quality-string byte value of every read in a
FASTQ file

Writes one "<read_id>\t<mean_qscore>\n" line per read, where mean_qscore
is the arithmetic mean of the raw ASCII bytes of the quality string
(not Phred-shifted); this reports a score, it does not filter reads by
it.
`,
	Run: func(cmd *cobra.Command, args []string) {
		timeStart := time.Now()
		defer func() {
			log.Info()
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}()

		inFile := getFlagString(cmd, "in-file")
		if inFile == "" {
			checkError(fmt.Errorf("flag -i/--in-file needed"))
		}
		outFile := getFlagString(cmd, "out-file")

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

		var total uint64
		for {
			record, err := reader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				log.Warningf("%s: dropping malformed record: %s", inFile, err)
				continue
			}
			total++

			qual := record.Seq.Qual
			var sum int
			for _, q := range qual {
				sum += int(q)
			}
			mean := 0.0
			if len(qual) > 0 {
				mean = float64(sum) / float64(len(qual))
			}

			outfh.Write(record.ID)
			outfh.WriteByte('\t')
			outfh.WriteString(strconv.FormatFloat(mean, 'f', 4, 64))
			outfh.WriteByte('\n')
		}
		log.Infof("scored %d reads", total)
	},
}

func init() {
	RootCmd.AddCommand(avgQualityScoreCmd)

	avgQualityScoreCmd.Flags().StringP("in-file", "i", "", "FASTQ file to score")
	avgQualityScoreCmd.Flags().StringP("out-file", "o", "out.qscore", "output TSV path (.gz compresses)")
}
