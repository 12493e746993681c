package train

import (
	"fmt"
	"time"
)

// Metrics are sample-weighted averages over a number of batches.
type Metrics struct {
	Loss           float64 // weighted sum of the head losses
	PolicyLoss     float64
	ValueLoss      float64
	PolicyAccuracy float64
	ValueAccuracy  float64
	Samples        int
}

// String formats the metrics on one line.
func (m Metrics) String() string {
	return fmt.Sprintf("loss=%.4f policy_loss=%.4f value_loss=%.4f policy_acc=%.4f value_acc=%.4f",
		m.Loss, m.PolicyLoss, m.ValueLoss, m.PolicyAccuracy, m.ValueAccuracy)
}

// Report returns the multi-line evaluation summary printed after training.
func (m Metrics) Report() string {
	return fmt.Sprintf("weighted loss: %f\npolicy loss: %f\nvalue loss: %f\npolicy accuracy: %f\nvalue accuracy: %f\n",
		m.Loss, m.PolicyLoss, m.ValueLoss, m.PolicyAccuracy, m.ValueAccuracy)
}

// StepMetrics are the results of a single batch.
type StepMetrics struct {
	Loss           float32
	PolicyLoss     float32
	ValueLoss      float32
	PolicyAccuracy float32
	ValueAccuracy  float32
	BatchSize      int
}

// meter accumulates StepMetrics weighted by batch size.
type meter struct {
	loss, policyLoss, valueLoss float64
	policyAcc, valueAcc         float64
	samples                     int
}

func (m *meter) add(s StepMetrics) {
	n := float64(s.BatchSize)
	m.loss += float64(s.Loss) * n
	m.policyLoss += float64(s.PolicyLoss) * n
	m.valueLoss += float64(s.ValueLoss) * n
	m.policyAcc += float64(s.PolicyAccuracy) * n
	m.valueAcc += float64(s.ValueAccuracy) * n
	m.samples += s.BatchSize
}

func (m *meter) metrics() Metrics {
	if m.samples == 0 {
		return Metrics{}
	}
	n := float64(m.samples)
	return Metrics{
		Loss:           m.loss / n,
		PolicyLoss:     m.policyLoss / n,
		ValueLoss:      m.valueLoss / n,
		PolicyAccuracy: m.policyAcc / n,
		ValueAccuracy:  m.valueAcc / n,
		Samples:        m.samples,
	}
}

// Window accumulates timing stats across multiple steps.
type Window struct {
	samples  int
	data     time.Duration
	compute  time.Duration
	steps    int
	lastLoss float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(batchSize int, dataTime, computeTime time.Duration, loss float64) {
	w.samples += batchSize
	w.data += dataTime
	w.compute += computeTime
	w.steps++
	w.lastLoss = loss
}

// Snapshot returns aggregated throughput and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{LastLoss: w.lastLoss}
	total := w.data + w.compute
	if total > 0 {
		snap.SamplesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.steps > 0 {
		snap.AvgDataMS = (w.data.Seconds() * 1000) / float64(w.steps)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}
	*w = Window{}
	return snap
}

// Snapshot represents loggable throughput.
type Snapshot struct {
	SamplesPerSec float64
	AvgDataMS     float64
	AvgComputeMS  float64
	LastLoss      float64
}
