//go:build !windows

package main

import (
	"context"
	"io"
	"log"

	"github.com/born-ml/zebrago/internal/evaluate"
)

// The born webgpu backend only builds on windows.

func trainWebGPU(context.Context, trainPlan, io.Writer, *log.Logger) error {
	return errNoWebGPU
}

func webgpuScorer(string, *log.Logger) (evaluate.Scorer, func(), error) {
	return nil, func() {}, errNoWebGPU
}
