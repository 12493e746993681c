// Package config holds run configuration for the zebra commands.
//
// Values are resolved in three layers: built-in defaults, an optional
// YAML file, then command-line overrides. Validate is called last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/zebrago/internal/tfrecord"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Devices accepted by the training and inference commands.
const (
	DeviceCPU    = "cpu"
	DeviceWebGPU = "webgpu"
)

// DefaultCheckpoint is where weight-only checkpoints are written.
const DefaultCheckpoint = "checkpoints/cp.born"

// Train captures the knobs for a training run.
type Train struct {
	NumEpochs     int     `yaml:"num_epochs"`
	LoadModel     string  `yaml:"load_model"`
	TrainRecords  string  `yaml:"train_records"`
	TestRecords   string  `yaml:"test_records"`
	TrainedModel  string  `yaml:"trained_model"`
	Checkpoint    string  `yaml:"checkpoint"`
	StepsPerEpoch int     `yaml:"steps_per_epoch"`
	EvalSteps     int     `yaml:"eval_steps"`
	BatchSize     int     `yaml:"batch_size"`
	ShuffleBuffer int     `yaml:"shuffle_buffer"`
	LearningRate  float64 `yaml:"learning_rate"`
	Workers       int     `yaml:"workers"`
	Seed          uint64  `yaml:"seed"`
	LogEvery      int     `yaml:"log_every"`
	Device        string  `yaml:"device"`
	Compression   string  `yaml:"compression"`
}

// DefaultTrain returns the built-in training configuration.
func DefaultTrain() Train {
	return Train{
		NumEpochs:     10,
		Checkpoint:    DefaultCheckpoint,
		StepsPerEpoch: 100000,
		EvalSteps:     1000,
		BatchSize:     64,
		ShuffleBuffer: 12800,
		LearningRate:  0.01,
		Workers:       1,
		Seed:          1,
		LogEvery:      100,
		Device:        DeviceCPU,
		Compression:   "ZLIB",
	}
}

// TrainOverrides carries command-line values. Zero values leave the
// configuration untouched.
type TrainOverrides struct {
	NumEpochs     int
	LoadModel     string
	TrainRecords  string
	TestRecords   string
	TrainedModel  string
	Checkpoint    string
	StepsPerEpoch int
	EvalSteps     int
	BatchSize     int
	ShuffleBuffer int
	LearningRate  float64
	Workers       int
	Seed          uint64
	LogEvery      int
	Device        string
}

// LoadTrain reads a YAML file on top of DefaultTrain. Unknown keys are
// rejected. An empty path returns the defaults.
func LoadTrain(path string) (Train, error) {
	cfg := DefaultTrain()
	if path == "" {
		return cfg, nil
	}
	if err := decodeFile(path, &cfg); err != nil {
		return Train{}, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Train) ApplyOverrides(o TrainOverrides) {
	if o.NumEpochs != 0 {
		c.NumEpochs = o.NumEpochs
	}
	if o.LoadModel != "" {
		c.LoadModel = o.LoadModel
	}
	if o.TrainRecords != "" {
		c.TrainRecords = o.TrainRecords
	}
	if o.TestRecords != "" {
		c.TestRecords = o.TestRecords
	}
	if o.TrainedModel != "" {
		c.TrainedModel = o.TrainedModel
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
	if o.StepsPerEpoch != 0 {
		c.StepsPerEpoch = o.StepsPerEpoch
	}
	if o.EvalSteps != 0 {
		c.EvalSteps = o.EvalSteps
	}
	if o.BatchSize != 0 {
		c.BatchSize = o.BatchSize
	}
	if o.ShuffleBuffer != 0 {
		c.ShuffleBuffer = o.ShuffleBuffer
	}
	if o.LearningRate != 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery != 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Device != "" {
		c.Device = o.Device
	}
}

// Validate reports every problem with the configuration at once.
func (c Train) Validate() error {
	var errs []error
	required := []struct{ flag, value string }{
		{"train_records", c.TrainRecords},
		{"test_records", c.TestRecords},
		{"trained_model", c.TrainedModel},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%w: %s is required", ErrInvalid, r.flag))
		}
	}
	positive := []struct {
		name  string
		value int
	}{
		{"num_epochs", c.NumEpochs},
		{"steps_per_epoch", c.StepsPerEpoch},
		{"eval_steps", c.EvalSteps},
		{"batch_size", c.BatchSize},
		{"workers", c.Workers},
		{"log_every", c.LogEvery},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, p.name, p.value))
		}
	}
	if c.ShuffleBuffer < 0 {
		errs = append(errs, fmt.Errorf("%w: shuffle_buffer must not be negative", ErrInvalid))
	}
	if c.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: learning_rate must be positive, got %v", ErrInvalid, c.LearningRate))
	}
	if c.Checkpoint == "" {
		errs = append(errs, fmt.Errorf("%w: checkpoint path is empty", ErrInvalid))
	}
	if err := validateDevice(c.Device); err != nil {
		errs = append(errs, err)
	}
	if _, err := tfrecord.ParseCompression(c.Compression); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// CompressionType returns the parsed record compression.
func (c Train) CompressionType() tfrecord.Compression {
	comp, _ := tfrecord.ParseCompression(c.Compression)
	return comp
}

// Gen configures the dataset generator.
type Gen struct {
	SGFFiles        string `yaml:"sgf_files"`
	OutputPrefix    string `yaml:"output_prefix"`
	ExamplesPerFile int    `yaml:"examples_per_file"`
	Workers         int    `yaml:"workers"`
	MinSteps        int    `yaml:"min_steps"`
	Compression     string `yaml:"compression"`
}

// DefaultGen returns the built-in generator configuration.
func DefaultGen() Gen {
	return Gen{
		ExamplesPerFile: 100000,
		Workers:         4,
		MinSteps:        3,
		Compression:     "ZLIB",
	}
}

// LoadGen reads a YAML file on top of DefaultGen.
func LoadGen(path string) (Gen, error) {
	cfg := DefaultGen()
	if path == "" {
		return cfg, nil
	}
	if err := decodeFile(path, &cfg); err != nil {
		return Gen{}, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c Gen) Validate() error {
	var errs []error
	if c.SGFFiles == "" {
		errs = append(errs, fmt.Errorf("%w: sgf_files is required", ErrInvalid))
	}
	if c.OutputPrefix == "" {
		errs = append(errs, fmt.Errorf("%w: output_prefix is required", ErrInvalid))
	}
	if c.ExamplesPerFile <= 0 {
		errs = append(errs, fmt.Errorf("%w: examples_per_file must be positive", ErrInvalid))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive", ErrInvalid))
	}
	if c.MinSteps < 0 {
		errs = append(errs, fmt.Errorf("%w: min_steps must not be negative", ErrInvalid))
	}
	if _, err := tfrecord.ParseCompression(c.Compression); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

// CompressionType returns the parsed record compression.
func (c Gen) CompressionType() tfrecord.Compression {
	comp, _ := tfrecord.ParseCompression(c.Compression)
	return comp
}

func validateDevice(device string) error {
	switch device {
	case DeviceCPU, DeviceWebGPU:
		return nil
	default:
		return fmt.Errorf("%w: unknown device %q (want %s or %s)", ErrInvalid, device, DeviceCPU, DeviceWebGPU)
	}
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
