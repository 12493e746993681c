package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/born-ml/zebrago/internal/config"
	"github.com/born-ml/zebrago/internal/gendata"
)

func runGendata(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) error {
	fs := newFlagSet("gendata", stdout)
	cfgPath := fs.String("config", "", "Path to YAML generator config")
	sgfFiles := fs.String("sgf_files", "", "Comma-separated globs of SGF games")
	prefix := fs.String("output", "", "Output shard prefix; shards are named <prefix>-NNNN.rio")
	perFile := fs.Int("examples_per_file", 0, "Records per shard (default 100000)")
	workers := fs.Int("workers", 0, "Games parsed in parallel (default 4)")
	minSteps := fs.Int("min_steps", -1, "Skip the first N moves of every game (default 3)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadGen(*cfgPath)
	if err != nil {
		return err
	}
	if *sgfFiles != "" {
		cfg.SGFFiles = *sgfFiles
	}
	if *prefix != "" {
		cfg.OutputPrefix = *prefix
	}
	if *perFile != 0 {
		cfg.ExamplesPerFile = *perFile
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *minSteps >= 0 {
		cfg.MinSteps = *minSteps
	}

	stats, err := gendata.Run(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Games: %d (%d skipped)\nExamples: %d\nShards: %d\n",
		stats.Files, stats.Failed, stats.Examples, len(stats.Shards))
	return nil
}
