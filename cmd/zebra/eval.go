package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/born-ml/zebrago/internal/config"
	"github.com/born-ml/zebrago/internal/dataset"
	"github.com/born-ml/zebrago/internal/evaluate"
)

func runEval(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) error {
	fs := newFlagSet("eval", stdout)
	sgfFiles := fs.String("sgf_files", "", "Comma-separated globs of SGF games")
	modelPath := fs.String("model", "", "Model to evaluate")
	device := fs.String("device", config.DeviceCPU, "cpu or webgpu")
	batchSize := fs.Int("batch_size", evaluate.DefaultBatchSize, "Positions per forward pass")
	workers := fs.Int("workers", 4, "Games replayed in parallel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sgfFiles == "" || *modelPath == "" {
		return fmt.Errorf("%w: -sgf_files and -model are required", config.ErrInvalid)
	}

	files, err := dataset.Glob(*sgfFiles)
	if err != nil {
		return err
	}
	positions, err := evaluate.LoadPositions(ctx, files, *workers, logger)
	if err != nil {
		return err
	}

	scorer, release, err := openScorer(*device, *modelPath, logger)
	if err != nil {
		return err
	}
	defer release()

	report, err := evaluate.Run(ctx, positions, scorer, *batchSize)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, report)
	return nil
}
