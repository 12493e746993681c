// Package example encodes and decodes tf.Example protocol buffers.
//
// Only the subset of the tensorflow.Example schema used by training
// records is supported:
//
//	message Example  { Features features = 1; }
//	message Features { map<string, Feature> feature = 1; }
//	message Feature  { oneof kind { BytesList bytes_list = 1;
//	                                FloatList float_list = 2;
//	                                Int64List int64_list = 3; } }
//
// Repeated scalars are written packed and accepted in both packed and
// unpacked form.
package example

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when bytes cannot be parsed as an Example.
var ErrMalformed = errors.New("example: malformed protobuf")

// Kind identifies which list a Feature holds.
type Kind int

// Feature kinds, numbered as their field numbers in tf.Feature.
const (
	KindNone  Kind = 0
	KindBytes Kind = 1
	KindFloat Kind = 2
	KindInt64 Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes_list"
	case KindFloat:
		return "float_list"
	case KindInt64:
		return "int64_list"
	default:
		return "none"
	}
}

// Feature is one named value list.
type Feature struct {
	Kind   Kind
	Bytes  [][]byte
	Floats []float32
	Int64s []int64
}

// BytesFeature returns a bytes_list feature.
func BytesFeature(values ...[]byte) Feature {
	return Feature{Kind: KindBytes, Bytes: values}
}

// FloatFeature returns a float_list feature.
func FloatFeature(values ...float32) Feature {
	return Feature{Kind: KindFloat, Floats: values}
}

// Int64Feature returns an int64_list feature.
func Int64Feature(values ...int64) Feature {
	return Feature{Kind: KindInt64, Int64s: values}
}

// Len returns the number of values in the feature's active list.
func (f Feature) Len() int {
	switch f.Kind {
	case KindBytes:
		return len(f.Bytes)
	case KindFloat:
		return len(f.Floats)
	case KindInt64:
		return len(f.Int64s)
	default:
		return 0
	}
}

// Example is a set of named features.
type Example struct {
	Features map[string]Feature
}

// New returns an empty Example.
func New() *Example {
	return &Example{Features: make(map[string]Feature)}
}

// Set stores a feature under name.
func (e *Example) Set(name string, f Feature) {
	if e.Features == nil {
		e.Features = make(map[string]Feature)
	}
	e.Features[name] = f
}

// Get returns the feature stored under name.
func (e *Example) Get(name string) (Feature, bool) {
	f, ok := e.Features[name]
	return f, ok
}

// Marshal encodes the example. Map entries are emitted in key order so
// the output is deterministic.
func (e *Example) Marshal() []byte {
	keys := make([]string, 0, len(e.Features))
	for k := range e.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, e.Features[k].marshal())

		features = protowire.AppendTag(features, 1, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	out := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(out, features)
}

func (f Feature) marshal() []byte {
	var list []byte
	switch f.Kind {
	case KindBytes:
		for _, v := range f.Bytes {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
	case KindFloat:
		if len(f.Floats) > 0 {
			packed := make([]byte, 0, 4*len(f.Floats))
			for _, v := range f.Floats {
				packed = protowire.AppendFixed32(packed, math.Float32bits(v))
			}
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	case KindInt64:
		if len(f.Int64s) > 0 {
			var packed []byte
			for _, v := range f.Int64s {
				packed = protowire.AppendVarint(packed, uint64(v))
			}
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	default:
		return nil
	}

	out := protowire.AppendTag(nil, protowire.Number(f.Kind), protowire.BytesType)
	return protowire.AppendBytes(out, list)
}

// Unmarshal decodes an Example. Unknown fields are skipped.
func Unmarshal(b []byte) (*Example, error) {
	e := New()
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		if typ != protowire.BytesType {
			return fmt.Errorf("%w: features has wire type %d", ErrMalformed, typ)
		}
		return e.unmarshalFeatures(v)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Example) unmarshalFeatures(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		if typ != protowire.BytesType {
			return fmt.Errorf("%w: feature map entry has wire type %d", ErrMalformed, typ)
		}
		return e.unmarshalEntry(v)
	})
}

func (e *Example) unmarshalEntry(b []byte) error {
	var (
		key string
		f   Feature
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			if typ != protowire.BytesType {
				return fmt.Errorf("%w: feature key has wire type %d", ErrMalformed, typ)
			}
			key = string(v)
		case 2:
			if typ != protowire.BytesType {
				return fmt.Errorf("%w: feature %q has wire type %d", ErrMalformed, key, typ)
			}
			var err error
			f, err = unmarshalFeature(v)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.Features[key] = f
	return nil
}

func unmarshalFeature(b []byte) (Feature, error) {
	var f Feature
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		kind := Kind(num)
		if kind != KindBytes && kind != KindFloat && kind != KindInt64 {
			return nil
		}
		if typ != protowire.BytesType {
			return fmt.Errorf("%w: %v has wire type %d", ErrMalformed, kind, typ)
		}
		// A different member of the oneof replaces the earlier one.
		if f.Kind != kind {
			f = Feature{Kind: kind}
		}
		return unmarshalList(&f, v)
	})
	return f, err
}

func unmarshalList(f *Feature, b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		if num != 1 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		switch {
		case f.Kind == KindBytes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			f.Bytes = append(f.Bytes, append([]byte(nil), v...))
			b = b[n:]
		case f.Kind == KindFloat && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			if len(v)%4 != 0 {
				return fmt.Errorf("%w: packed float list of %d bytes", ErrMalformed, len(v))
			}
			for len(v) > 0 {
				bits, m := protowire.ConsumeFixed32(v)
				f.Floats = append(f.Floats, math.Float32frombits(bits))
				v = v[m:]
			}
			b = b[n:]
		case f.Kind == KindFloat && typ == protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			f.Floats = append(f.Floats, math.Float32frombits(bits))
			b = b[n:]
		case f.Kind == KindInt64 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			for len(v) > 0 {
				x, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
				}
				f.Int64s = append(f.Int64s, int64(x))
				v = v[m:]
			}
			b = b[n:]
		case f.Kind == KindInt64 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			f.Int64s = append(f.Int64s, int64(x))
			b = b[n:]
		default:
			return fmt.Errorf("%w: %v value has wire type %d", ErrMalformed, f.Kind, typ)
		}
	}
	return nil
}

// walk iterates over the fields of a message, handing length-delimited
// payloads to fn. Scalar fields are passed with a nil value.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		var value []byte
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
			}
			value, n = v, m
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
		}
		b = b[n:]

		if err := fn(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}
