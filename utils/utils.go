package utils

import (
	"math"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// IsPowerOfTwo returns true if x is a strictly positive power of two.
func IsPowerOfTwo(x int) bool {
	return x > 0 && x&(x-1) == 0
}

// CeilLog2 returns ceil(log2(n)), and 0 for n <= 1.
func CeilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// RotationOffsets returns the left-rotation offsets 1, 2, 4, ..., 2^{ceil(log2(n))-1}
// of a binary-tree reduction summing the first n slots into slot 0.
func RotationOffsets(n int) (offsets []int) {
	steps := CeilLog2(n)
	offsets = make([]int, steps)
	for i := range offsets {
		offsets[i] = 1 << i
	}
	return
}

// PadSlice returns a new slice of length size whose first len(s) elements are
// the elements of s and the remaining ones the zero value of T.
// The method panics if len(s) > size.
func PadSlice[T any](s []T, size int) []T {
	if len(s) > size {
		panic("cannot PadSlice: len(s) > size")
	}
	ret := make([]T, size)
	copy(ret, s)
	return ret
}

// RotateSlice returns a new slice corresponding to s rotated by k positions to the left.
func RotateSlice[T any](s []T, k int) []T {
	if k == 0 || len(s) == 0 {
		return append([]T{}, s...)
	}
	r := k % len(s)
	if r < 0 {
		r = r + len(s)
	}
	ret := make([]T, len(s))
	copy(ret[:len(s)-r], s[r:])
	copy(ret[len(s)-r:], s[:r])
	return ret
}

// AbsDiff returns |a - b|.
func AbsDiff[T constraints.Float](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}

// AlmostEqual returns true if |a - b| <= tol.
func AlmostEqual[T constraints.Float](a, b, tol T) bool {
	return AbsDiff(a, b) <= tol
}

// IsFinite returns true if x is neither NaN nor an infinity.
func IsFinite[T constraints.Float](x T) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AllFinite returns true if every element of s is finite.
func AllFinite[T constraints.Float](s []T) bool {
	for _, x := range s {
		if !IsFinite(x) {
			return false
		}
	}
	return true
}

// MinMax returns the minimum and maximum of a non-empty slice.
func MinMax[T constraints.Ordered](s []T) (lo, hi T) {
	lo, hi = s[0], s[0]
	for _, x := range s[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return
}
