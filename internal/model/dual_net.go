// Package model implements the dual-headed Go network, its losses and
// its on-disk format.
package model

import (
	"fmt"
	"sort"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/zebrago/internal/record"
)

// Architecture constants.
const (
	BoardSize   = record.BoardSize
	InputPlanes = record.NumPlanes
	PolicySize  = record.BoardArea
	SharedWidth = 512
	DropoutRate = 0.5

	trunkOut    = 32
	flattenSize = trunkOut * BoardSize * BoardSize // 11552
)

// ModelType is stored in saved model headers.
const ModelType = "DualNet"

// DualNet is the policy/value network.
//
// Architecture:
//
//	Input: [batch, 19, 19, 7] (channels last), transposed to NCHW
//	Conv1: 7 → 64, 7x7, same padding, ReLU
//	Conv2: 64 → 64, 7x7, same padding, ReLU
//	Conv3: 64 → 32, 5x5, same padding, ReLU
//	Conv4: 32 → 32, 5x5, same padding, ReLU
//	Dropout 0.5
//	Conv5: 32 → 32, 5x5, same padding, ReLU
//	Flatten -> [batch, 11552]
//	Dropout 0.5
//	Shared: 11552 → 512 (linear)
//	Policy: 512 → 361, softmax
//	Value:  512 → 1, sigmoid
type DualNet[B tensor.Backend] struct {
	conv1   *nn.Conv2D[B]
	conv2   *nn.Conv2D[B]
	conv3   *nn.Conv2D[B]
	conv4   *nn.Conv2D[B]
	conv5   *nn.Conv2D[B]
	relu    *nn.ReLU[B]
	drop1   *Dropout[B]
	drop2   *Dropout[B]
	shared  *nn.Linear[B]
	policy  *nn.Linear[B]
	value   *nn.Linear[B]
	sigmoid *nn.Sigmoid[B]
	backend B
}

// Output holds both heads for a batch.
type Output[B tensor.Backend] struct {
	// PolicyLogits is [batch, 361]; softmax gives move probabilities.
	PolicyLogits *tensor.Tensor[float32, B]
	// Value is [batch, 1], already squashed into (0, 1).
	Value *tensor.Tensor[float32, B]
}

// NewDualNet creates a freshly initialized network with Xavier weights
// and zero biases. The dropout layers start in training mode.
func NewDualNet[B tensor.Backend](backend B) *DualNet[B] {
	return &DualNet[B]{
		conv1:   nn.NewConv2D(InputPlanes, 64, 7, 7, 1, 3, true, backend),
		conv2:   nn.NewConv2D(64, 64, 7, 7, 1, 3, true, backend),
		conv3:   nn.NewConv2D(64, 32, 5, 5, 1, 2, true, backend),
		conv4:   nn.NewConv2D(32, 32, 5, 5, 1, 2, true, backend),
		conv5:   nn.NewConv2D(32, trunkOut, 5, 5, 1, 2, true, backend),
		relu:    nn.NewReLU[B](),
		drop1:   NewDropout(DropoutRate, 1, backend),
		drop2:   NewDropout(DropoutRate, 2, backend),
		shared:  nn.NewLinear(flattenSize, SharedWidth, backend),
		policy:  nn.NewLinear(SharedWidth, PolicySize, backend),
		value:   nn.NewLinear(SharedWidth, 1, backend),
		sigmoid: nn.NewSigmoid[B](),
		backend: backend,
	}
}

// SeedDropout reseeds both dropout layers. The training flag is kept.
func (m *DualNet[B]) SeedDropout(seed uint64) {
	training := m.Training()
	m.drop1 = NewDropout(DropoutRate, seed, m.backend)
	m.drop2 = NewDropout(DropoutRate, seed+2, m.backend)
	m.SetTraining(training)
}

// SetTraining toggles dropout.
func (m *DualNet[B]) SetTraining(training bool) {
	m.drop1.SetTraining(training)
	m.drop2.SetTraining(training)
}

// Training reports whether dropout is active.
func (m *DualNet[B]) Training() bool {
	return m.drop1.Training()
}

// Backend returns the backend the network was built on.
func (m *DualNet[B]) Backend() B {
	return m.backend
}

// Heads runs the network and returns both outputs.
func (m *DualNet[B]) Heads(input *tensor.Tensor[float32, B]) Output[B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != BoardSize || shape[2] != BoardSize || shape[3] != InputPlanes {
		panic(fmt.Sprintf("dualnet: expected input [batch, %d, %d, %d], got %v",
			BoardSize, BoardSize, InputPlanes, shape))
	}
	batch := shape[0]

	x := input.Transpose(0, 3, 1, 2) // [batch, 7, 19, 19]

	x = m.relu.Forward(m.conv1.Forward(x)) // [batch, 64, 19, 19]
	x = m.relu.Forward(m.conv2.Forward(x)) // [batch, 64, 19, 19]
	x = m.relu.Forward(m.conv3.Forward(x)) // [batch, 32, 19, 19]
	x = m.relu.Forward(m.conv4.Forward(x)) // [batch, 32, 19, 19]
	x = m.drop1.Forward(x)
	x = m.relu.Forward(m.conv5.Forward(x)) // [batch, 32, 19, 19]

	x = x.Reshape(batch, flattenSize)
	x = m.drop2.Forward(x)
	x = m.shared.Forward(x) // [batch, 512]

	return Output[B]{
		PolicyLogits: m.policy.Forward(x),
		Value:        m.sigmoid.Forward(m.value.Forward(x)),
	}
}

// Forward returns the policy logits. Use Heads to get the value as well.
func (m *DualNet[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return m.Heads(input).PolicyLogits
}

type namedLayer[B tensor.Backend] struct {
	name   string
	params []*nn.Parameter[B]
}

func (m *DualNet[B]) layers() []namedLayer[B] {
	return []namedLayer[B]{
		{"conv1", m.conv1.Parameters()},
		{"conv2", m.conv2.Parameters()},
		{"conv3", m.conv3.Parameters()},
		{"conv4", m.conv4.Parameters()},
		{"conv5", m.conv5.Parameters()},
		{"shared", m.shared.Parameters()},
		{"policy_output", m.policy.Parameters()},
		{"value_output", m.value.Parameters()},
	}
}

// Parameters returns all trainable parameters.
func (m *DualNet[B]) Parameters() []*nn.Parameter[B] {
	// 8 layers × (weight + bias).
	params := make([]*nn.Parameter[B], 0, 16)
	for _, l := range m.layers() {
		params = append(params, l.params...)
	}
	return params
}

// paramKey names the i-th parameter of a layer: weight first, then bias.
func paramKey(layer string, i int) string {
	if i == 0 {
		return layer + ".weight"
	}
	return layer + ".bias"
}

// StateDict returns the parameters keyed as "<layer>.weight" and
// "<layer>.bias".
func (m *DualNet[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, l := range m.layers() {
		for i, p := range l.params {
			state[paramKey(l.name, i)] = p.Tensor().Raw()
		}
	}
	return state
}

// LoadStateDict copies parameter values from state. Every parameter must
// be present with a matching shape and dtype; keys the network does not
// own are ignored.
func (m *DualNet[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	var missing []string
	for _, l := range m.layers() {
		for i, p := range l.params {
			key := paramKey(l.name, i)
			src, ok := state[key]
			if !ok {
				missing = append(missing, key)
				continue
			}
			dst := p.Tensor().Raw()
			if !src.Shape().Equal(dst.Shape()) {
				return fmt.Errorf("%w: %s shape %v, want %v", ErrIncompatibleModel, key, src.Shape(), dst.Shape())
			}
			if src.DType() != tensor.Float32 {
				return fmt.Errorf("%w: %s dtype %v, want float32", ErrIncompatibleModel, key, src.DType())
			}
			copy(dst.AsFloat32(), src.AsFloat32())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %v", ErrIncompatibleModel, missing)
	}
	return nil
}

// NumParameters returns the total number of trainable weights.
func (m *DualNet[B]) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		n := 1
		for _, d := range p.Tensor().Shape() {
			n *= d
		}
		total += n
	}
	return total
}
