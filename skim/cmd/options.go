package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

// Options carries the persistent flags shared by every subcommand.
type Options struct {
	Verbose    bool
	LogFile    string
	Log2File   bool
	NumCPUs    int
	CPUProfile string
}

func getOptions(cmd *cobra.Command) *Options {
	verbose := getFlagBool(cmd, "verbose")
	logFile := getFlagString(cmd, "log-file")

	threads := getFlagInt(cmd, "threads")
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	return &Options{
		Verbose:    verbose,
		LogFile:    logFile,
		Log2File:   logFile != "",
		NumCPUs:    threads,
		CPUProfile: getFlagString(cmd, "cpu-profile"),
	}
}
