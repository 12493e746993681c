//go:build windows

package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"

	"github.com/born-ml/zebrago/internal/evaluate"
)

func newWebGPU(logger *log.Logger) (*webgpu.Backend, error) {
	if !webgpu.IsAvailable() {
		return nil, errNoWebGPU
	}
	gpu, err := webgpu.New()
	if err != nil {
		return nil, fmt.Errorf("webgpu: %w", err)
	}
	logger.Printf("using %s", gpu.Name())
	return gpu, nil
}

func trainWebGPU(ctx context.Context, plan trainPlan, stdout io.Writer, logger *log.Logger) error {
	gpu, err := newWebGPU(logger)
	if err != nil {
		return err
	}
	defer gpu.Release()
	return runTraining(ctx, plan, gpu, stdout, logger)
}

func webgpuScorer(path string, logger *log.Logger) (evaluate.Scorer, func(), error) {
	gpu, err := newWebGPU(logger)
	if err != nil {
		return nil, func() {}, err
	}
	s, err := loadScorer(autodiff.New(gpu), path, logger)
	if err != nil {
		gpu.Release()
		return nil, func() {}, err
	}
	return s, gpu.Release, nil
}
