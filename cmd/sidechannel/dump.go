package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidechannel-merge/sidechannel/pkg/config"
	"github.com/sidechannel-merge/sidechannel/pkg/report"
)

func newDumpCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "dump <trace-file>...",
		Short: "Render only the call-tree dump to stdout, skipping leakage attribution",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(configPath, args)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the analysis config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runDump(configPath string, tracePaths []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.StandardLogger()

	ctx, err := mergeTraces(tracePaths, cfg, logger)
	if err != nil {
		return err
	}

	opts := report.CallTreeDumpOptions{IncludeMemoryAccesses: cfg.IncludeMemoryAccessesInDump}

	return report.DumpCallTree(os.Stdout, ctx.Root, ctx.Interner, opts)
}
