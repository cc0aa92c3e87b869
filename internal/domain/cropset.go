package domain

import (
	"strconv"
	"strings"
)

// CropSet is an ordered sequence of center-crop fractions applied to the
// shorter image side before embedding. 1.0 keeps the full image. A
// single-fraction "fast" set trades accuracy for latency against a
// multi-fraction "full" set.
type CropSet []float64

// Signature returns a stable cache-key component for the crop set.
func (c CropSet) Signature() string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, len(c))
	for i, f := range c {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// PrefixOf reports whether c is a strict ordered prefix of other. The
// embedding cache may serve a fast-crop lookup from a cached full-crop
// entry only when this holds: the first vectors of the full entry are
// exactly the vectors the fast set would have produced.
func (c CropSet) PrefixOf(other CropSet) bool {
	if len(c) == 0 || len(c) >= len(other) {
		return false
	}
	for i, f := range c {
		if other[i] != f {
			return false
		}
	}
	return true
}
