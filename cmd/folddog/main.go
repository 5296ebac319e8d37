package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "folddog",
		Short:   "Find duplicate and near-duplicate directory trees",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newScanCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
