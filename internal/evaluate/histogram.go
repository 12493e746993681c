package evaluate

import (
	"strconv"
	"strings"
)

// Histogram counts values in equal-width buckets over [Min, Max]. Values
// outside the range land in the first or last bucket.
type Histogram struct {
	Min, Max float32
	Buckets  []int
}

// NewHistogram returns an empty histogram with n buckets.
func NewHistogram(lo, hi float32, n int) *Histogram {
	return &Histogram{Min: lo, Max: hi, Buckets: make([]int, n)}
}

// Count adds v.
func (h *Histogram) Count(v float32) {
	last := len(h.Buckets) - 1
	switch {
	case v <= h.Min:
		h.Buckets[0]++
	case v >= h.Max:
		h.Buckets[last]++
	default:
		width := (h.Max - h.Min) / float32(len(h.Buckets))
		i := int((v - h.Min) / width)
		h.Buckets[min(i, last)]++
	}
}

// Total returns the number of counted values.
func (h *Histogram) Total() int {
	n := 0
	for _, c := range h.Buckets {
		n += c
	}
	return n
}

// String lists the bucket counts separated by commas.
func (h *Histogram) String() string {
	parts := make([]string, len(h.Buckets))
	for i, c := range h.Buckets {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}
