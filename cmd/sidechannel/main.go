// Command sidechannel merges per-test-case execution traces into a call
// tree and reports where control flow or memory accesses depend on
// secret-dependent test-case identity.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sidechannel",
		Short: "Merge execution traces and report microarchitectural leakage",
	}

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newDumpCmd())

	return root
}
