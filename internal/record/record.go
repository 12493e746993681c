// Package record defines the training record schema and converts between
// serialized tf.Example bytes and fixed-shape samples.
//
// The schema is shared by the dataset generator (Encode) and the input
// pipeline (Decode), so both sides of the record contract live here.
//
// A decoded sample holds a 19x19x7 feature tensor in HWC order. Channel c
// of the tensor is the plane named PlaneNames[c]:
//
//	orig        stones: +1 current player, -1 opponent
//	b1, b2, b3  current player's chains with 1, 2, 3 liberties
//	w1, w2, w3  opponent's chains with 1, 2, 3 liberties
package record

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/zebrago/internal/example"
)

// Board geometry.
const (
	BoardSize  = 19
	BoardArea  = BoardSize * BoardSize
	NumPlanes  = 7
	SampleSize = BoardArea * NumPlanes
)

// Feature keys.
const (
	KeyNext    = "next"
	KeyNextXY  = "next_xy"
	KeyOutcome = "outcome"
	KeyNote    = "note"
)

// PlaneNames lists the plane features in channel order.
var PlaneNames = [NumPlanes]string{"orig", "b1", "b2", "b3", "w1", "w2", "w3"}

// Shape is the per-sample feature tensor shape (height, width, channels).
var Shape = [3]int{BoardSize, BoardSize, NumPlanes}

// Decode errors.
var (
	ErrMalformed    = errors.New("record: malformed example")
	ErrMissingField = errors.New("record: missing required field")
	ErrFieldType    = errors.New("record: wrong field type")
	ErrInvalidLabel = errors.New("record: invalid label")
	ErrPlaneSize    = errors.New("record: plane too large")
)

// Sample is one decoded training example.
type Sample struct {
	// Features is the flattened [19][19][7] tensor.
	Features []float32
	Next     int32
	Outcome  float32
	Note     string
}

// NewSample returns a sample with an all-zero feature tensor.
func NewSample() *Sample {
	return &Sample{Features: make([]float32, SampleSize)}
}

// MoveIndex returns the flattened board index of (x, y).
func MoveIndex(x, y int) int {
	return y*BoardSize + x
}

// MoveXY is the inverse of MoveIndex.
func MoveXY(index int) (x, y int) {
	return index % BoardSize, index / BoardSize
}

// At returns the feature value at row y, column x, channel c.
func (s *Sample) At(y, x, c int) float32 {
	return s.Features[(y*BoardSize+x)*NumPlanes+c]
}

// Set stores the feature value at row y, column x, channel c.
func (s *Sample) Set(y, x, c int, v float32) {
	s.Features[(y*BoardSize+x)*NumPlanes+c] = v
}

// Plane returns a copy of channel c as a flattened 19x19 grid.
func (s *Sample) Plane(c int) []float32 {
	out := make([]float32, BoardArea)
	for i := range out {
		out[i] = s.Features[i*NumPlanes+c]
	}
	return out
}

// SetPlane fills channel c from a flattened grid. Values past the end of
// the board are ignored and missing values become zero.
func (s *Sample) SetPlane(c int, values []float32) {
	for i := 0; i < BoardArea; i++ {
		var v float32
		if i < len(values) {
			v = values[i]
		}
		s.Features[i*NumPlanes+c] = v
	}
}

// Decode converts serialized tf.Example bytes into a Sample.
func Decode(b []byte) (*Sample, error) {
	ex, err := example.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	s := NewSample()

	next, err := fixedInt(ex, KeyNext)
	if err != nil {
		return nil, err
	}
	if next < 0 || next >= BoardArea {
		return nil, fmt.Errorf("%w: %s=%d out of range [0,%d]", ErrInvalidLabel, KeyNext, next, BoardArea-1)
	}
	s.Next = int32(next)

	outcome, err := fixedFloat(ex, KeyOutcome)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(float64(outcome)) || math.IsInf(float64(outcome), 0) {
		return nil, fmt.Errorf("%w: %s=%v is not finite", ErrInvalidLabel, KeyOutcome, outcome)
	}
	s.Outcome = outcome

	if f, ok := ex.Get(KeyNote); ok {
		if f.Kind != example.KindBytes {
			return nil, fmt.Errorf("%w: %s is %v", ErrFieldType, KeyNote, f.Kind)
		}
		if len(f.Bytes) > 0 {
			s.Note = string(f.Bytes[0])
		}
	}

	for c, name := range PlaneNames {
		f, ok := ex.Get(name)
		if !ok {
			continue
		}
		if f.Kind != example.KindFloat {
			return nil, fmt.Errorf("%w: %s is %v", ErrFieldType, name, f.Kind)
		}
		if len(f.Floats) > BoardArea {
			return nil, fmt.Errorf("%w: %s has %d values", ErrPlaneSize, name, len(f.Floats))
		}
		s.SetPlane(c, f.Floats)
	}

	return s, nil
}

func fixedInt(ex *example.Example, key string) (int64, error) {
	f, ok := ex.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	if f.Kind != example.KindInt64 {
		return 0, fmt.Errorf("%w: %s is %v, want int64_list", ErrFieldType, key, f.Kind)
	}
	if len(f.Int64s) != 1 {
		return 0, fmt.Errorf("%w: %s has %d values, want 1", ErrInvalidLabel, key, len(f.Int64s))
	}
	return f.Int64s[0], nil
}

func fixedFloat(ex *example.Example, key string) (float32, error) {
	f, ok := ex.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	if f.Kind != example.KindFloat {
		return 0, fmt.Errorf("%w: %s is %v, want float_list", ErrFieldType, key, f.Kind)
	}
	if len(f.Floats) != 1 {
		return 0, fmt.Errorf("%w: %s has %d values, want 1", ErrInvalidLabel, key, len(f.Floats))
	}
	return f.Floats[0], nil
}

// Encode serializes s as a tf.Example. All seven planes are written in
// full together with next, next_xy, outcome and note.
func Encode(s *Sample) []byte {
	ex := example.New()
	x, y := MoveXY(int(s.Next))
	ex.Set(KeyNext, example.Int64Feature(int64(s.Next)))
	ex.Set(KeyNextXY, example.Int64Feature(int64(x), int64(y)))
	ex.Set(KeyOutcome, example.FloatFeature(s.Outcome))
	ex.Set(KeyNote, example.BytesFeature([]byte(s.Note)))
	for c, name := range PlaneNames {
		ex.Set(name, example.FloatFeature(s.Plane(c)...))
	}
	return ex.Marshal()
}
