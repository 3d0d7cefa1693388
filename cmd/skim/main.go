// Command skim builds and queries a run-length-encoded k-mer index for
// metagenomic sequence classification.
package main

import "github.com/trevor-schnegg/skim-go/skim/cmd"

func main() {
	cmd.Execute()
}
