package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/zebrago/internal/record"
)

// InputTensor wraps flattened HWC features for batch samples as a
// [batch, 19, 19, 7] tensor.
func InputTensor[B tensor.Backend](features []float32, batch int, backend B) (*tensor.Tensor[float32, B], error) {
	if len(features) != batch*record.SampleSize {
		return nil, fmt.Errorf("model: %d feature values for batch of %d, want %d",
			len(features), batch, batch*record.SampleSize)
	}
	return tensor.FromSlice(features, tensor.Shape{batch, BoardSize, BoardSize, InputPlanes}, backend)
}

// Labels wraps next-move and outcome labels as [batch] int32 and
// [batch, 1] float32 tensors.
func Labels[B tensor.Backend](next []int32, outcome []float32, backend B) (*tensor.Tensor[int32, B], *tensor.Tensor[float32, B], error) {
	if len(next) != len(outcome) {
		return nil, nil, fmt.Errorf("model: %d move labels but %d outcome labels", len(next), len(outcome))
	}
	nt, err := tensor.FromSlice(next, tensor.Shape{len(next)}, backend)
	if err != nil {
		return nil, nil, err
	}
	ot, err := tensor.FromSlice(outcome, tensor.Shape{len(outcome), 1}, backend)
	if err != nil {
		return nil, nil, err
	}
	return nt, ot, nil
}

// Prediction is the network output for one batch, detached from tensors.
type Prediction struct {
	// Policy holds one probability distribution over the 361 points per sample.
	Policy [][]float32
	// Value holds the predicted win probability for the player to move.
	Value []float32
}

// Predict runs the network in inference mode. The previous training flag
// is restored afterwards.
func (m *DualNet[B]) Predict(input *tensor.Tensor[float32, B]) Prediction {
	wasTraining := m.Training()
	m.SetTraining(false)
	defer m.SetTraining(wasTraining)

	out := m.Heads(input)
	return NewPrediction(out)
}

// NewPrediction converts head outputs into probabilities.
func NewPrediction[B tensor.Backend](out Output[B]) Prediction {
	logits := out.PolicyLogits.Data()
	values := out.Value.Data()
	batch := len(values)

	p := Prediction{
		Policy: make([][]float32, batch),
		Value:  append([]float32(nil), values...),
	}
	for i := 0; i < batch; i++ {
		p.Policy[i] = Softmax(logits[i*PolicySize : (i+1)*PolicySize])
	}
	return p
}

// Softmax returns exp(x_i) / sum_j exp(x_j), computed stably.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Move is a candidate point with its policy score.
type Move struct {
	Index int
	Score float32
}

// XY returns the board coordinates of the move.
func (mv Move) XY() (x, y int) {
	return record.MoveXY(mv.Index)
}

// TopK returns the k highest scoring moves, best first. Ties keep the
// lower index first.
func TopK(scores []float32, k int) []Move {
	moves := make([]Move, len(scores))
	for i, s := range scores {
		moves[i] = Move{Index: i, Score: s}
	}
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].Score > moves[j].Score
	})
	if k < len(moves) {
		moves = moves[:k]
	}
	return moves
}

// Rank returns how many scores are strictly greater than scores[index].
// Rank 0 means the move is the top prediction.
func Rank(scores []float32, index int) int {
	target := scores[index]
	rank := 0
	for _, s := range scores {
		if s > target {
			rank++
		}
	}
	return rank
}

// ValueAccuracy returns the fraction of samples whose thresholded
// prediction (1 above 0.5, else 0) equals the raw label. Labels other than
// 0 and 1 never match.
func ValueAccuracy(values, outcome []float32) float32 {
	if len(outcome) == 0 {
		return 0
	}
	correct := 0
	for i, y := range outcome {
		pred := float32(0)
		if values[i] > 0.5 {
			pred = 1
		}
		if pred == y {
			correct++
		}
	}
	return float32(correct) / float32(len(outcome))
}
