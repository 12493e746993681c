package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"

	"github.com/born-ml/zebrago/internal/config"
	"github.com/born-ml/zebrago/internal/dataset"
	"github.com/born-ml/zebrago/internal/model"
	"github.com/born-ml/zebrago/internal/train"
)

// trainPlan is a validated configuration with its resolved input files.
type trainPlan struct {
	cfg        config.Train
	trainFiles []string
	testFiles  []string
}

func runTrain(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) error {
	fs := newFlagSet("train", stdout)
	cfgPath := fs.String("config", "", "Path to YAML run config")
	var o config.TrainOverrides
	fs.IntVar(&o.NumEpochs, "num_epochs", 0, "Number of epochs (default 10)")
	fs.StringVar(&o.LoadModel, "load_model", "", "Resume from a full model saved by a previous run")
	fs.StringVar(&o.TrainRecords, "train_records", "", "Comma-separated globs of training shards")
	fs.StringVar(&o.TestRecords, "test_records", "", "Comma-separated globs of evaluation shards")
	fs.StringVar(&o.TrainedModel, "trained_model", "", "Where to write the trained model")
	fs.StringVar(&o.Checkpoint, "checkpoint", "", "Weight-only checkpoint path (default "+config.DefaultCheckpoint+")")
	fs.IntVar(&o.StepsPerEpoch, "steps_per_epoch", 0, "Batches per epoch (default 100000)")
	fs.IntVar(&o.EvalSteps, "eval_steps", 0, "Batches in the final evaluation (default 1000)")
	fs.IntVar(&o.BatchSize, "batch_size", 0, "Batch size (default 64)")
	fs.IntVar(&o.ShuffleBuffer, "shuffle_buffer", 0, "Shuffle buffer in samples (default 12800)")
	fs.Float64Var(&o.LearningRate, "lr", 0, "SGD learning rate (default 0.01)")
	fs.IntVar(&o.Workers, "workers", 0, "Record decode goroutines (default 1)")
	fs.Uint64Var(&o.Seed, "seed", 0, "Shuffle and dropout seed (default 1)")
	fs.IntVar(&o.LogEvery, "log_every", 0, "Log progress every N steps (default 100)")
	fs.StringVar(&o.Device, "device", "", "cpu or webgpu (default cpu)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plan, err := planTraining(*cfgPath, o)
	if err != nil {
		return err
	}
	logger.Printf("train: %d training shards, %d test shards, device=%s",
		len(plan.trainFiles), len(plan.testFiles), plan.cfg.Device)

	switch plan.cfg.Device {
	case config.DeviceWebGPU:
		return trainWebGPU(ctx, plan, stdout, logger)
	default:
		return runTraining(ctx, plan, cpu.New(), stdout, logger)
	}
}

// planTraining resolves and checks everything a run needs. It opens no
// record file and builds no model.
func planTraining(cfgPath string, o config.TrainOverrides) (trainPlan, error) {
	cfg, err := config.LoadTrain(cfgPath)
	if err != nil {
		return trainPlan{}, err
	}
	cfg.ApplyOverrides(o)
	if err := cfg.Validate(); err != nil {
		return trainPlan{}, err
	}
	trainFiles, err := dataset.Glob(cfg.TrainRecords)
	if err != nil {
		return trainPlan{}, fmt.Errorf("train_records: %w", err)
	}
	testFiles, err := dataset.Glob(cfg.TestRecords)
	if err != nil {
		return trainPlan{}, fmt.Errorf("test_records: %w", err)
	}
	return trainPlan{cfg: cfg, trainFiles: trainFiles, testFiles: testFiles}, nil
}

func pipelineOptions(cfg config.Train, repeat bool) dataset.Options {
	opts := dataset.DefaultOptions()
	opts.BatchSize = cfg.BatchSize
	opts.ShuffleBuffer = cfg.ShuffleBuffer
	opts.Repeat = repeat
	opts.Seed = cfg.Seed
	opts.Workers = cfg.Workers
	opts.Compression = cfg.CompressionType()
	return opts
}

func runTraining[I tensor.Backend](ctx context.Context, plan trainPlan, inner I, stdout io.Writer, logger *log.Logger) error {
	cfg := plan.cfg
	backend := autodiff.New(inner)
	net := model.NewDualNet(backend)
	net.SeedDropout(cfg.Seed)

	trainer := train.New(backend, net, train.Config{
		Epochs:        cfg.NumEpochs,
		StepsPerEpoch: cfg.StepsPerEpoch,
		LogEvery:      cfg.LogEvery,
		Checkpoint:    cfg.Checkpoint,
		LearningRate:  float32(cfg.LearningRate),
		RunID:         uuid.NewString(),
	}, logger)
	logger.Printf("run %s: %d parameters", trainer.RunID(), net.NumParameters())

	if cfg.LoadModel != "" {
		if err := trainer.Resume(cfg.LoadModel); err != nil {
			return err
		}
	}

	trainData, err := dataset.Open(ctx, plan.trainFiles, pipelineOptions(cfg, true))
	if err != nil {
		return err
	}
	_, err = trainer.Fit(ctx, trainData)
	if cerr := trainData.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	if err := trainer.Save(cfg.TrainedModel); err != nil {
		return err
	}
	logger.Printf("saved model to %s", cfg.TrainedModel)

	// The test set repeats so evaluation always runs eval_steps batches.
	testOpts := pipelineOptions(cfg, true)
	testOpts.ShuffleBuffer = 0
	testData, err := dataset.Open(ctx, plan.testFiles, testOpts)
	if err != nil {
		return err
	}
	defer func() { _ = testData.Close() }()

	m, err := trainer.Evaluate(ctx, testData, cfg.EvalSteps)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	logger.Printf("evaluated %d samples", m.Samples)
	fmt.Fprint(stdout, m.Report())
	return nil
}
