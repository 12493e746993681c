package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dropout zeroes a random fraction of its input while training and scales
// the survivors by 1/(1-rate), so inference needs no rescaling.
//
// The mask is a constant tensor multiplied into the input, which keeps the
// operation on the autodiff tape.
type Dropout[B tensor.Backend] struct {
	rate     float32
	training bool
	rng      *rand.Rand
	backend  B
}

// NewDropout creates a dropout layer. It starts in training mode.
func NewDropout[B tensor.Backend](rate float32, seed uint64, backend B) *Dropout[B] {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropout: rate must be in [0, 1), got %v", rate))
	}
	return &Dropout[B]{
		rate:     rate,
		training: true,
		rng:      rand.New(rand.NewPCG(seed, seed+1)),
		backend:  backend,
	}
}

// Forward applies the dropout mask in training mode and is the identity
// otherwise.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.rate == 0 {
		return input
	}

	shape := input.Shape()
	n := 1
	for _, dim := range shape {
		n *= dim
	}

	scale := 1 / (1 - d.rate)
	mask := make([]float32, n)
	for i := range mask {
		if d.rng.Float32() >= d.rate {
			mask[i] = scale
		}
	}

	m, err := tensor.FromSlice(mask, shape, d.backend)
	if err != nil {
		panic(fmt.Sprintf("dropout: build mask: %v", err))
	}
	return input.Mul(m)
}

// SetTraining switches between training and inference behavior.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// Training reports whether the layer is in training mode.
func (d *Dropout[B]) Training() bool {
	return d.training
}

// Rate returns the drop probability.
func (d *Dropout[B]) Rate() float32 {
	return d.rate
}

// Parameters returns nil; dropout has no trainable state.
func (d *Dropout[B]) Parameters() []*nn.Parameter[B] {
	return nil
}
