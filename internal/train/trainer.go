// Package train runs the fit and evaluate loops for the dual network.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/google/uuid"

	"github.com/born-ml/zebrago/internal/dataset"
	"github.com/born-ml/zebrago/internal/model"
)

// ErrDiverged is returned when the training loss stops being finite.
var ErrDiverged = errors.New("train: loss is not finite")

// Source yields batches; dataset.Pipeline implements it.
type Source interface {
	Next() (*dataset.Batch, error)
}

// Config controls the fit loop.
type Config struct {
	Epochs        int
	StepsPerEpoch int
	LogEvery      int
	// Checkpoint receives the weights after every epoch. Empty disables it.
	Checkpoint   string
	LearningRate float32
	RunID        string
}

// Trainer owns a network, its SGD optimizer and the autodiff backend
// that records gradients for them.
type Trainer[I tensor.Backend] struct {
	backend *autodiff.Backend[I]
	net     *model.DualNet[*autodiff.Backend[I]]
	opt     *optim.SGD[*autodiff.Backend[I]]
	cfg     Config
	logger  *log.Logger
	epoch   int
	step    int64
}

// New creates a trainer for net. A missing run id is generated.
func New[I tensor.Backend](
	backend *autodiff.Backend[I],
	net *model.DualNet[*autodiff.Backend[I]],
	cfg Config,
	logger *log.Logger,
) *Trainer[I] {
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.01
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 100
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Trainer[I]{
		backend: backend,
		net:     net,
		opt:     optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: cfg.LearningRate}, backend),
		cfg:     cfg,
		logger:  logger,
	}
}

// RunID identifies this run in logs and saved metadata.
func (t *Trainer[I]) RunID() string {
	return t.cfg.RunID
}

// Epoch returns the number of completed epochs, including resumed ones.
func (t *Trainer[I]) Epoch() int {
	return t.epoch
}

// Net returns the network being trained.
func (t *Trainer[I]) Net() *model.DualNet[*autodiff.Backend[I]] {
	return t.net
}

func (t *Trainer[I]) metadata() map[string]string {
	return map[string]string{
		model.MetaOptimizer: "sgd",
		model.MetaLR:        strconv.FormatFloat(float64(t.opt.GetLR()), 'g', -1, 32),
		model.MetaEpoch:     strconv.Itoa(t.epoch),
		model.MetaRunID:     t.cfg.RunID,
	}
}

// Resume loads a full model saved by Save, including optimizer state.
func (t *Trainer[I]) Resume(path string) error {
	meta, err := model.Load(path, t.net, t.opt)
	if err != nil {
		return err
	}
	if e, err := strconv.Atoi(meta[model.MetaEpoch]); err == nil {
		t.epoch = e
	}
	t.logger.Printf("resumed %s (run=%s epoch=%d)", path, meta[model.MetaRunID], t.epoch)
	return nil
}

// Save writes the full model.
func (t *Trainer[I]) Save(path string) error {
	return model.Save(path, t.net, t.opt, t.metadata())
}

// TrainStep runs forward, backward and one optimizer update on b.
func (t *Trainer[I]) TrainStep(b *dataset.Batch) (StepMetrics, error) {
	x, err := model.InputTensor(b.Features, b.Size, t.backend)
	if err != nil {
		return StepMetrics{}, err
	}
	next, outcome, err := model.Labels(b.Next, b.Outcome, t.backend)
	if err != nil {
		return StepMetrics{}, err
	}

	tape := t.backend.Tape()
	if !tape.IsRecording() {
		tape.StartRecording()
		defer tape.StopRecording()
	}
	defer tape.Clear()

	t.net.SetTraining(true)
	t.opt.ZeroGrad()

	out := t.net.Heads(x)
	losses := model.ComputeLosses(out, next, outcome)

	m := StepMetrics{
		Loss:       losses.Total.Data()[0],
		PolicyLoss: losses.Policy.Data()[0],
		ValueLoss:  losses.Value.Data()[0],
		BatchSize:  b.Size,
	}
	if math.IsNaN(float64(m.Loss)) || math.IsInf(float64(m.Loss), 0) {
		return m, fmt.Errorf("%w at step %d", ErrDiverged, t.step+1)
	}

	outputGrad, err := tensor.NewRaw(losses.Total.Shape(), losses.Total.DType(), t.backend.Device())
	if err != nil {
		return m, err
	}
	outputGrad.AsFloat32()[0] = 1.0

	grads := tape.Backward(outputGrad, t.backend)
	t.opt.Step(grads)
	t.step++

	// Metrics read tensors only, after the tape has been consumed.
	m.PolicyAccuracy = nn.Accuracy(out.PolicyLogits, next)
	m.ValueAccuracy = model.ValueAccuracy(out.Value.Data(), b.Outcome)
	return m, nil
}

// Fit trains for the configured number of epochs and returns the
// training metrics of each one. A weight-only checkpoint is written after
// every epoch. An exhausted source ends the current epoch early.
func (t *Trainer[I]) Fit(ctx context.Context, src Source) ([]Metrics, error) {
	if t.cfg.Epochs <= 0 || t.cfg.StepsPerEpoch <= 0 {
		return nil, fmt.Errorf("train: epochs (%d) and steps per epoch (%d) must be positive",
			t.cfg.Epochs, t.cfg.StepsPerEpoch)
	}

	tape := t.backend.Tape()
	tape.StartRecording()
	defer tape.StopRecording()

	history := make([]Metrics, 0, t.cfg.Epochs)
	for e := 0; e < t.cfg.Epochs; e++ {
		var (
			epochMeter meter
			window     Window
			exhausted  bool
		)
		start := time.Now()

		for step := 1; step <= t.cfg.StepsPerEpoch; step++ {
			if err := ctx.Err(); err != nil {
				return history, err
			}

			dataStart := time.Now()
			b, err := src.Next()
			if errors.Is(err, io.EOF) {
				exhausted = true
				break
			}
			if err != nil {
				return history, err
			}
			dataTime := time.Since(dataStart)

			computeStart := time.Now()
			sm, err := t.TrainStep(b)
			if err != nil {
				return history, err
			}
			window.Record(b.Size, dataTime, time.Since(computeStart), float64(sm.Loss))
			epochMeter.add(sm)

			if step%t.cfg.LogEvery == 0 {
				snap := window.Snapshot()
				cur := epochMeter.metrics()
				t.logger.Printf("epoch=%d step=%d/%d samples_per_sec=%.1f data_ms=%.2f compute_ms=%.2f loss=%.4f policy_acc=%.4f value_acc=%.4f",
					t.epoch+1, step, t.cfg.StepsPerEpoch,
					snap.SamplesPerSec, snap.AvgDataMS, snap.AvgComputeMS,
					snap.LastLoss, cur.PolicyAccuracy, cur.ValueAccuracy)
			}
		}

		t.epoch++
		m := epochMeter.metrics()
		history = append(history, m)
		t.logger.Printf("epoch %d done in %s: %s", t.epoch, time.Since(start).Round(time.Millisecond), m)

		if t.cfg.Checkpoint != "" {
			if err := model.SaveWeights(t.cfg.Checkpoint, t.net, t.metadata()); err != nil {
				return history, err
			}
			t.logger.Printf("epoch %d: saved weights to %s", t.epoch, t.cfg.Checkpoint)
		}

		if exhausted {
			t.logger.Printf("training data exhausted after %d samples", m.Samples)
			break
		}
	}
	return history, nil
}

// Evaluate runs up to steps batches in inference mode without recording
// gradients. A steps value of zero or less consumes the source until EOF.
func (t *Trainer[I]) Evaluate(ctx context.Context, src Source, steps int) (Metrics, error) {
	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	wasTraining := t.net.Training()
	t.net.SetTraining(false)
	defer t.net.SetTraining(wasTraining)

	var m meter
	for step := 0; steps <= 0 || step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return m.metrics(), err
		}
		b, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return m.metrics(), err
		}

		x, err := model.InputTensor(b.Features, b.Size, t.backend)
		if err != nil {
			return m.metrics(), err
		}
		next, outcome, err := model.Labels(b.Next, b.Outcome, t.backend)
		if err != nil {
			return m.metrics(), err
		}

		out := t.net.Heads(x)
		losses := model.ComputeLosses(out, next, outcome)
		m.add(StepMetrics{
			Loss:           losses.Total.Data()[0],
			PolicyLoss:     losses.Policy.Data()[0],
			ValueLoss:      losses.Value.Data()[0],
			PolicyAccuracy: nn.Accuracy(out.PolicyLogits, next),
			ValueAccuracy:  model.ValueAccuracy(out.Value.Data(), b.Outcome),
			BatchSize:      b.Size,
		})
	}
	return m.metrics(), nil
}
