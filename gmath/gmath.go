// Package gmath implements float32 math for the splat rasterizer.
package gmath

import (
	"math"
	"math/bits"

	"golang.org/x/exp/constraints"
)

func Clamp[T constraints.Ordered](x, lo, hi T) T {
	return min(max(x, lo), hi)
}

func AlignUp[T constraints.Integer](len T, alignment T) T {
	return (len + alignment - 1) & -alignment
}

// CeilDiv returns ceil(x / y) for positive y.
func CeilDiv[T constraints.Integer](x, y T) T {
	return (x + y - 1) / y
}

// SortableBits maps a float32 to a uint32 whose unsigned ordering matches
// the float ordering, including negative values.
func SortableBits(f float32) uint32 {
	b := math.Float32bits(f)
	if b&0x8000_0000 != 0 {
		return ^b
	}
	return b | 0x8000_0000
}

// BitsForCount returns the number of bits needed to represent every value
// in [0, n).
func BitsForCount(n uint32) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len32(n - 1))
}
