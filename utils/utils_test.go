package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCeilLog2(t *testing.T) {
	require.Equal(t, 0, CeilLog2(0))
	require.Equal(t, 0, CeilLog2(1))
	require.Equal(t, 1, CeilLog2(2))
	require.Equal(t, 2, CeilLog2(3))
	require.Equal(t, 2, CeilLog2(4))
	require.Equal(t, 3, CeilLog2(5))
	require.Equal(t, 10, CeilLog2(1024))
	require.Equal(t, 11, CeilLog2(1025))
}

func TestRotationOffsets(t *testing.T) {
	require.Empty(t, RotationOffsets(1))
	require.Equal(t, []int{1}, RotationOffsets(2))
	require.Equal(t, []int{1, 2}, RotationOffsets(3))
	require.Equal(t, []int{1, 2, 4}, RotationOffsets(5))
	require.Equal(t, []int{1, 2, 4}, RotationOffsets(8))
}

func TestIsPowerOfTwo(t *testing.T) {
	require.False(t, IsPowerOfTwo(0))
	require.False(t, IsPowerOfTwo(-4))
	require.True(t, IsPowerOfTwo(1))
	require.True(t, IsPowerOfTwo(8192))
	require.False(t, IsPowerOfTwo(6))
}

func TestPadSlice(t *testing.T) {
	s := []float64{1, 2}
	require.Equal(t, []float64{1, 2, 0, 0}, PadSlice(s, 4))
	require.Equal(t, []float64{1, 2}, s, "should not modify input slice")
	require.Panics(t, func() { PadSlice(s, 1) })
}

func TestRotateSlice(t *testing.T) {
	s := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	require.Equal(t, []float64{3, 4, 5, 6, 7, 0, 1, 2}, RotateSlice(s, 3))
	require.Equal(t, []float64{6, 7, 0, 1, 2, 3, 4, 5}, RotateSlice(s, -2))
	require.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 0}, RotateSlice(s, 9))
	require.Equal(t, s, RotateSlice(s, 0))
	require.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7}, s, "should not modify input slice")
}

func TestFloatHelpers(t *testing.T) {
	require.Equal(t, 0.5, AbsDiff(1.0, 1.5))
	require.True(t, AlmostEqual(0.1, 0.1000001, 1e-3))
	require.False(t, AlmostEqual(0.1, 0.2, 1e-3))
	require.True(t, AllFinite([]float64{1, -2, 0}))
	require.False(t, AllFinite([]float64{1, math.NaN()}))
	require.False(t, IsFinite(math.Inf(-1)))

	lo, hi := MinMax([]float64{3, -1, 7, 2})
	require.Equal(t, -1.0, lo)
	require.Equal(t, 7.0, hi)
}
