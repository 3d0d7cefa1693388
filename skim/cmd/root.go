// Package cmd implements the skim command-line tool: build, classify,
// pairwise-distances, extend-distances, file2taxid, avg-quality-score,
// and fix-database.
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

// VERSION is the skim-go release string.
const VERSION = "0.1.0"

// RootCmd is the entry point cobra.Command; cmd/skim/main.go runs it
// through Execute.
var RootCmd = &cobra.Command{
	Use:   "skim",
	Short: "Metagenomic sequence classification against a k-mer index",
	Long: `skim builds a run-length-encoded k-mer index over a set of reference
genomes and classifies short reads against it using a binomial
significance test.`,
	Version: VERSION,
}

var cpuProfileStopper interface{ Stop() }

func init() {
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "print verbose information")
	RootCmd.PersistentFlags().String("log-file", "", "log file (append mode, default stderr)")
	RootCmd.PersistentFlags().IntP("threads", "j", 0, "number of worker goroutines (0 = number of CPUs)")
	RootCmd.PersistentFlags().String("cpu-profile", "", "write a pprof CPU profile to this directory")
	RootCmd.PersistentFlags().MarkHidden("cpu-profile")

	RootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		addLog(getFlagString(cmd, "log-file"), getFlagBool(cmd, "verbose"))

		path := getFlagString(cmd, "cpu-profile")
		if path == "" {
			return
		}
		cpuProfileStopper = profile.Start(profile.CPUProfile, profile.ProfilePath(path), profile.Quiet)
	}
	RootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if cpuProfileStopper != nil {
			cpuProfileStopper.Stop()
		}
	}
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
