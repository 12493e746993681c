package model

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// Loss weights for the two heads.
const (
	PolicyLossWeight = 1.0
	ValueLossWeight  = 1.0
)

// bceEpsilon keeps log() finite when the sigmoid saturates.
const bceEpsilon = 1e-7

// Losses holds the per-head losses and their weighted sum. All three are
// scalars of shape [1].
type Losses[B tensor.Backend] struct {
	Policy *tensor.Tensor[float32, B]
	Value  *tensor.Tensor[float32, B]
	Total  *tensor.Tensor[float32, B]
}

// crossEntropyBackend is implemented by backends with a fused
// softmax cross-entropy, such as autodiff.Backend.
type crossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// SparseCrossEntropy returns the mean cross-entropy between logits
// [batch, classes] and integer class targets [batch].
func SparseCrossEntropy[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	backend := logits.Backend()
	ce, ok := any(backend).(crossEntropyBackend)
	if !ok {
		panic("model: backend does not implement CrossEntropy, use autodiff.Backend")
	}
	return tensor.New[float32](ce.CrossEntropy(logits.Raw(), targets.Raw()), backend)
}

// BinaryCrossEntropy returns the mean of
//
//	-(y*log(p+eps) + (1-y)*log(1-p+eps))
//
// for probabilities p [batch, 1] and labels y [batch, 1]. It is built from
// primitive tensor ops so the autodiff backend can differentiate it.
func BinaryCrossEntropy[B tensor.Backend](
	probs *tensor.Tensor[float32, B],
	labels *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	shape := probs.Shape()
	if len(shape) != 2 || shape[1] != 1 || !shape.Equal(labels.Shape()) {
		panic(fmt.Sprintf("model: binary cross-entropy expects [batch, 1] inputs, got %v and %v",
			shape, labels.Shape()))
	}
	backend := probs.Backend()
	n := shape[0]

	eps := tensor.Full(shape, float32(bceEpsilon), backend)
	ones := tensor.Ones[float32](shape, backend)

	logP := probs.Add(eps).Log()
	logQ := ones.Sub(probs).Add(eps).Log()
	perSample := labels.Mul(logP).Add(ones.Sub(labels).Mul(logQ)) // [batch, 1]

	sum := tensor.Ones[float32](tensor.Shape{1, n}, backend).MatMul(perSample).Reshape(1)
	return sum.Mul(tensor.Full(tensor.Shape{1}, float32(-1)/float32(n), backend))
}

// ComputeLosses evaluates both head losses against the labels.
// next is [batch] move indices, outcome is [batch, 1].
//
// Total is the last op recorded, so a gradient tape can seed Backward
// from it directly.
func ComputeLosses[B tensor.Backend](
	out Output[B],
	next *tensor.Tensor[int32, B],
	outcome *tensor.Tensor[float32, B],
) Losses[B] {
	backend := out.Value.Backend()

	policy := SparseCrossEntropy(out.PolicyLogits, next)
	value := BinaryCrossEntropy(out.Value, outcome)

	wp := tensor.Full(tensor.Shape{1}, float32(PolicyLossWeight), backend)
	wv := tensor.Full(tensor.Shape{1}, float32(ValueLossWeight), backend)
	total := policy.Mul(wp).Add(value.Mul(wv))

	return Losses[B]{Policy: policy, Value: value, Total: total}
}
