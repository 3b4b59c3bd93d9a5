// Command qcachedemo drives the engine against a simulated flaky
// in-process network, printing each query/mutation transition as it
// happens. It exists to give the engine an executable, inspectable
// end-to-end scenario (spec §8's scenario list) rather than as a
// production tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voedger/qcache/pkg/goutils/logger"
)

func main() {
	if err := execRootCmd(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execRootCmd(args []string) error {
	rootCmd := &cobra.Command{
		Use:   "qcachedemo",
		Short: "Demonstrates the query/mutation cache engine against a flaky network",
	}
	rootCmd.AddCommand(newFetchCmd(), newMutateCmd(), newPersistCmd())
	rootCmd.SetArgs(args[1:])

	logger.SetLogLevel(logger.LogLevelInfo)

	return rootCmd.Execute()
}
