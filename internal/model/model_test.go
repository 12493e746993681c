package model

import (
	"io/fs"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zebrago/internal/record"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

// randomInput returns a batch of board-like features with values in {-1, 0, 1}.
func randomInput(t *testing.T, batch int, seed uint64, backend Backend) *tensor.Tensor[float32, Backend] {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed))
	data := make([]float32, batch*record.SampleSize)
	for i := range data {
		data[i] = float32(r.IntN(3) - 1)
	}
	x, err := InputTensor(data, batch, backend)
	require.NoError(t, err)
	return x
}

func TestOutputShapeContract(t *testing.T) {
	backend := newBackend()
	net := NewDualNet(backend)

	const batch = 3
	x := randomInput(t, batch, 1, backend)

	out := net.Heads(x)
	assert.Equal(t, tensor.Shape{batch, PolicySize}, out.PolicyLogits.Shape())
	assert.Equal(t, tensor.Shape{batch, 1}, out.Value.Shape())

	pred := net.Predict(x)
	require.Len(t, pred.Policy, batch)
	require.Len(t, pred.Value, batch)
	for i := 0; i < batch; i++ {
		require.Len(t, pred.Policy[i], PolicySize)
		var sum float64
		for _, p := range pred.Policy[i] {
			assert.GreaterOrEqual(t, p, float32(0))
			sum += float64(p)
		}
		assert.InDelta(t, 1.0, sum, 1e-4, "row %d", i)
		assert.Greater(t, pred.Value[i], float32(0))
		assert.Less(t, pred.Value[i], float32(1))
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	backend := newBackend()
	net := NewDualNet(backend)
	x := randomInput(t, 2, 5, backend)

	a := net.Predict(x)
	b := net.Predict(x)
	assert.Equal(t, a, b)
	assert.True(t, net.Training(), "Predict must restore training mode")
}

func TestHeadsRejectsBadInput(t *testing.T) {
	backend := newBackend()
	net := NewDualNet(backend)
	x := tensor.Zeros[float32](tensor.Shape{1, 7, 19, 19}, backend)
	assert.Panics(t, func() { net.Heads(x) })
}

func TestParameters(t *testing.T) {
	net := NewDualNet(newBackend())

	assert.Len(t, net.Parameters(), 16)
	state := net.StateDict()
	assert.Len(t, state, 16)
	assert.Equal(t, tensor.Shape{64, 7, 7, 7}, state["conv1.weight"].Shape())
	assert.Equal(t, tensor.Shape{SharedWidth, 32 * 19 * 19}, state["shared.weight"].Shape())
	assert.Equal(t, tensor.Shape{PolicySize}, state["policy_output.bias"].Shape())
	assert.Equal(t, tensor.Shape{1, SharedWidth}, state["value_output.weight"].Shape())

	want := 64*7*7*7 + 64 +
		64*64*7*7 + 64 +
		32*64*5*5 + 32 +
		32*32*5*5 + 32 +
		32*32*5*5 + 32 +
		11552*512 + 512 +
		512*361 + 361 +
		512 + 1
	assert.Equal(t, want, net.NumParameters())
}

func TestDropout(t *testing.T) {
	backend := newBackend()
	d := NewDropout(0.5, 42, backend)
	x := tensor.Ones[float32](tensor.Shape{100, 100}, backend)

	y := d.Forward(x).Data()
	zeros := 0
	for _, v := range y {
		switch v {
		case 0:
			zeros++
		case 2:
		default:
			t.Fatalf("unexpected dropout output %v", v)
		}
	}
	assert.InDelta(t, 5000, zeros, 400)

	d.SetTraining(false)
	assert.Same(t, x, d.Forward(x))
	assert.Panics(t, func() { NewDropout(1.0, 0, backend) })
}

func TestBinaryCrossEntropy(t *testing.T) {
	backend := newBackend()
	p, err := tensor.FromSlice([]float32{0.8, 0.3}, tensor.Shape{2, 1}, backend)
	require.NoError(t, err)
	y, err := tensor.FromSlice([]float32{1, 0}, tensor.Shape{2, 1}, backend)
	require.NoError(t, err)

	loss := BinaryCrossEntropy(p, y)
	require.Equal(t, tensor.Shape{1}, loss.Shape())

	want := -(math.Log(0.8) + math.Log(0.7)) / 2
	assert.InDelta(t, want, float64(loss.Data()[0]), 1e-4)
}

func TestComputeLosses(t *testing.T) {
	backend := newBackend()
	net := NewDualNet(backend)
	net.SetTraining(false)

	x := randomInput(t, 2, 9, backend)
	next, outcome, err := Labels([]int32{42, 300}, []float32{1, 0}, backend)
	require.NoError(t, err)

	losses := ComputeLosses(net.Heads(x), next, outcome)
	policy := losses.Policy.Data()[0]
	value := losses.Value.Data()[0]
	total := losses.Total.Data()[0]

	assert.Greater(t, policy, float32(0))
	assert.Greater(t, value, float32(0))
	assert.InDelta(t, policy+value, total, 1e-4)
	// A freshly initialized policy is close to uniform over 361 points.
	assert.InDelta(t, math.Log(PolicySize), float64(policy), 2.0)
}

func TestTrainingStepUpdatesWeights(t *testing.T) {
	backend := newBackend()
	net := NewDualNet(backend)
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.01}, backend)

	x := randomInput(t, 2, 11, backend)
	next, outcome, err := Labels([]int32{0, 180}, []float32{0, 1}, backend)
	require.NoError(t, err)

	before := append([]float32(nil), net.StateDict()["value_output.bias"].AsFloat32()...)

	backend.Tape().StartRecording()
	defer backend.Tape().StopRecording()

	opt.ZeroGrad()
	losses := ComputeLosses(net.Heads(x), next, outcome)
	total := losses.Total.Data()[0]
	require.False(t, math.IsNaN(float64(total)))

	seed, err := tensor.NewRaw(losses.Total.Shape(), losses.Total.DType(), backend.Device())
	require.NoError(t, err)
	seed.AsFloat32()[0] = 1
	grads := backend.Tape().Backward(seed, backend)
	opt.Step(grads)
	backend.Tape().Clear()

	after := net.StateDict()["value_output.bias"].AsFloat32()
	assert.NotEqual(t, before, after)
}

func TestSaveLoad(t *testing.T) {
	backend := newBackend()
	dir := t.TempDir()

	net := NewDualNet(backend)
	opt := optim.NewSGD(net.Parameters(), optim.SGDConfig{LR: 0.01}, backend)
	x := randomInput(t, 1, 3, backend)
	want := net.Predict(x)

	path := filepath.Join(dir, "out", "model.born")
	require.NoError(t, Save(path, net, opt, map[string]string{MetaRunID: "run-1", MetaEpoch: "2"}))

	restored := NewDualNet(backend)
	restoredOpt := optim.NewSGD(restored.Parameters(), optim.SGDConfig{LR: 0.01}, backend)
	meta, err := Load(path, restored, restoredOpt)
	require.NoError(t, err)
	assert.Equal(t, FormatFull, meta[MetaFormat])
	assert.Equal(t, "run-1", meta[MetaRunID])
	assert.Equal(t, "19", meta[MetaBoardSize])

	got := restored.Predict(x)
	require.Len(t, got.Policy, 1)
	for i := range want.Policy[0] {
		require.InDelta(t, want.Policy[0][i], got.Policy[0][i], 1e-6)
	}
	assert.InDelta(t, want.Value[0], got.Value[0], 1e-6)
}

func TestSaveWeights(t *testing.T) {
	backend := newBackend()
	path := filepath.Join(t.TempDir(), "checkpoints", "cp.born")

	net := NewDualNet(backend)
	require.NoError(t, SaveWeights(path, net, nil))

	meta, err := Load(path, NewDualNet(backend), nil)
	require.NoError(t, err)
	assert.Equal(t, FormatWeights, meta[MetaFormat])
}

func TestLoadIncompatible(t *testing.T) {
	backend := newBackend()
	dir := t.TempDir()

	linear := filepath.Join(dir, "linear.born")
	require.NoError(t, nn.Save[Backend](nn.NewLinear(4, 2, backend), linear, "Linear", nil))
	_, err := Load(linear, NewDualNet(backend), nil)
	assert.ErrorIs(t, err, ErrIncompatibleModel)

	_, err = Load(filepath.Join(dir, "missing.born"), NewDualNet(backend), nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{1, 2, 3, 1000})
	assert.InDelta(t, 1.0, p[3], 1e-6)

	p = Softmax([]float32{0, 0})
	assert.Equal(t, []float32{0.5, 0.5}, p)
	assert.Empty(t, Softmax(nil))
}

func TestTopKAndRank(t *testing.T) {
	scores := []float32{0.1, 0.5, 0.2, 0.5, 0.05}

	top := TopK(scores, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []int{1, 3, 2}, []int{top[0].Index, top[1].Index, top[2].Index})
	assert.Len(t, TopK(scores, 10), len(scores))

	assert.Equal(t, 0, Rank(scores, 1))
	assert.Equal(t, 0, Rank(scores, 3))
	assert.Equal(t, 2, Rank(scores, 2))
	assert.Equal(t, 4, Rank(scores, 4))

	x, y := Move{Index: 42}.XY()
	assert.Equal(t, 4, x)
	assert.Equal(t, 2, y)
}

func TestValueAccuracy(t *testing.T) {
	acc := ValueAccuracy([]float32{0.9, 0.2, 0.6, 0.4}, []float32{1, 0, 0, 1})
	assert.InDelta(t, 0.5, acc, 1e-6)
	assert.Zero(t, ValueAccuracy(nil, nil))

	// Labels are not rounded.
	acc = ValueAccuracy([]float32{0.9, 0.1, 0.9}, []float32{0.8, 0.2, 1})
	assert.InDelta(t, 1.0/3, acc, 1e-6)
}

func TestLabels(t *testing.T) {
	backend := newBackend()
	next, outcome, err := Labels([]int32{1, 2}, []float32{0, 1}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2}, next.Shape())
	assert.Equal(t, tensor.Shape{2, 1}, outcome.Shape())

	_, _, err = Labels([]int32{1}, []float32{0, 1}, backend)
	assert.Error(t, err)

	_, err = InputTensor(make([]float32, 10), 1, backend)
	assert.Error(t, err)
}
