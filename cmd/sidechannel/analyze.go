package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidechannel-merge/sidechannel/pkg/attribution"
	"github.com/sidechannel-merge/sidechannel/pkg/config"
	"github.com/sidechannel-merge/sidechannel/pkg/merge"
	"github.com/sidechannel-merge/sidechannel/pkg/report"
)

func newAnalyzeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "analyze <trace-file>...",
		Short: "Merge traces, attribute leakage, and write the report files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(configPath, args)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the analysis config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runAnalyze(configPath string, tracePaths []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logrus.StandardLogger()

	ctx, err := mergeTraces(tracePaths, cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDirectory, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if cfg.DumpCallTree {
		if err := writeCallTreeDump(cfg, ctx); err != nil {
			return err
		}
	}

	stacksPath := filepath.Join(cfg.OutputDirectory, "call-stacks.txt")

	f, err := os.Create(stacksPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", stacksPath, err)
	}
	defer f.Close()

	rootCS := attribution.Walk(ctx.Root)

	if err := report.DumpCallStackLeakage(f, rootCS, ctx.Interner); err != nil {
		return err
	}

	logger.WithField("memory_conflicts", ctx.MemoryConflictCount).Info("analysis complete")

	return nil
}

func writeCallTreeDump(cfg *config.Config, ctx *merge.Context) error {
	path := filepath.Join(cfg.OutputDirectory, "call-tree-dump.txt")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	opts := report.CallTreeDumpOptions{IncludeMemoryAccesses: cfg.IncludeMemoryAccessesInDump}

	return report.DumpCallTree(f, ctx.Root, ctx.Interner, opts)
}
