package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// ErrIncompatibleModel is returned when a saved model does not match the
// DualNet architecture.
var ErrIncompatibleModel = errors.New("model: incompatible saved model")

// Metadata keys written to saved models.
const (
	MetaFormat      = "format"
	MetaBoardSize   = "board_size"
	MetaInputPlanes = "input_planes"
	MetaOptimizer   = "optimizer"
	MetaLR          = "learning_rate"
	MetaEpoch       = "epoch"
	MetaRunID       = "run_id"

	FormatFull    = "full"
	FormatWeights = "weights"
)

const optimizerPrefix = "optimizer."

// Stateful is an optimizer whose internal state can be saved, such as
// optim.SGD.
type Stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// savedModel adapts a network and its optimizer to a single module so
// both are stored in one file.
type savedModel[B tensor.Backend] struct {
	net *DualNet[B]
	opt Stateful
}

func (s *savedModel[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return s.net.Forward(input)
}

func (s *savedModel[B]) Parameters() []*nn.Parameter[B] {
	return s.net.Parameters()
}

func (s *savedModel[B]) StateDict() map[string]*tensor.RawTensor {
	state := s.net.StateDict()
	if s.opt != nil {
		for k, v := range s.opt.StateDict() {
			state[optimizerPrefix+k] = v
		}
	}
	return state
}

func (s *savedModel[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := s.net.LoadStateDict(state); err != nil {
		return err
	}
	if s.opt == nil {
		return nil
	}
	optState := make(map[string]*tensor.RawTensor)
	for k, v := range state {
		if name, ok := strings.CutPrefix(k, optimizerPrefix); ok {
			optState[name] = v
		}
	}
	if err := s.opt.LoadStateDict(optState); err != nil {
		return fmt.Errorf("%w: optimizer state: %v", ErrIncompatibleModel, err)
	}
	return nil
}

func baseMetadata(format string, extra map[string]string) map[string]string {
	meta := map[string]string{
		MetaFormat:      format,
		MetaBoardSize:   strconv.Itoa(BoardSize),
		MetaInputPlanes: strconv.Itoa(InputPlanes),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Save writes the full model: network weights, optimizer state and
// metadata.
func Save[B tensor.Backend](path string, net *DualNet[B], opt Stateful, meta map[string]string) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("model: save %s: %w", path, err)
	}
	m := &savedModel[B]{net: net, opt: opt}
	if err := nn.Save[B](m, path, ModelType, baseMetadata(FormatFull, meta)); err != nil {
		return fmt.Errorf("model: save %s: %w", path, err)
	}
	return nil
}

// SaveWeights writes only the network weights.
func SaveWeights[B tensor.Backend](path string, net *DualNet[B], meta map[string]string) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("model: save weights %s: %w", path, err)
	}
	m := &savedModel[B]{net: net}
	if err := nn.Save[B](m, path, ModelType, baseMetadata(FormatWeights, meta)); err != nil {
		return fmt.Errorf("model: save weights %s: %w", path, err)
	}
	return nil
}

// Load restores net (and opt, when non-nil) from a file written by Save
// or SaveWeights and returns its metadata. Any mismatch with the DualNet
// architecture yields ErrIncompatibleModel.
func Load[B tensor.Backend](path string, net *DualNet[B], opt Stateful) (map[string]string, error) {
	m := &savedModel[B]{net: net, opt: opt}
	header, err := nn.Load[B](path, net.Backend(), m)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrIncompatibleModel) {
			return nil, fmt.Errorf("model: load %s: %w", path, err)
		}
		return nil, fmt.Errorf("model: load %s: %w: %v", path, ErrIncompatibleModel, err)
	}
	if header.ModelType != ModelType {
		return nil, fmt.Errorf("model: load %s: %w: model type %q, want %q",
			path, ErrIncompatibleModel, header.ModelType, ModelType)
	}
	if bs, ok := header.Metadata[MetaBoardSize]; ok && bs != strconv.Itoa(BoardSize) {
		return nil, fmt.Errorf("model: load %s: %w: board size %s", path, ErrIncompatibleModel, bs)
	}
	return header.Metadata, nil
}
