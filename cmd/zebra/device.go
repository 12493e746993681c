package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/zebrago/internal/config"
	"github.com/born-ml/zebrago/internal/evaluate"
	"github.com/born-ml/zebrago/internal/model"
)

var errNoWebGPU = errors.New("webgpu backend is not available on this system")

// openScorer loads a saved model on the named device. The returned
// release func frees device resources and is never nil.
func openScorer(device, path string, logger *log.Logger) (evaluate.Scorer, func(), error) {
	switch device {
	case config.DeviceCPU, "":
		s, err := loadScorer(autodiff.New(cpu.New()), path, logger)
		return s, func() {}, err
	case config.DeviceWebGPU:
		return webgpuScorer(path, logger)
	default:
		return nil, func() {}, fmt.Errorf("%w: unknown device %q", config.ErrInvalid, device)
	}
}

func loadScorer[B tensor.Backend](backend B, path string, logger *log.Logger) (evaluate.Scorer, error) {
	net := model.NewDualNet(backend)
	meta, err := model.Load(path, net, nil)
	if err != nil {
		return nil, err
	}
	logger.Printf("loaded %s (%s, run=%s epoch=%s)", path,
		meta[model.MetaFormat], meta[model.MetaRunID], meta[model.MetaEpoch])
	return evaluate.NewNetScorer(net), nil
}
