package decoding

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/hcanalytics/riskhe/core/herrors"
)

// PrecisionStats summarises the absolute errors between expected and decrypted values.
type PrecisionStats struct {
	Mean   float64
	Max    float64
	Median float64
	P99    float64
	StdDev float64

	// MinPrecision is -log2(Max), the number of correct bits of the worst value.
	MinPrecision float64
}

// String returns a one-line summary of the statistics.
func (s PrecisionStats) String() string {
	return fmt.Sprintf("mean=%.3e max=%.3e median=%.3e p99=%.3e stddev=%.3e (%.2f bits)",
		s.Mean, s.Max, s.Median, s.P99, s.StdDev, s.MinPrecision)
}

// Precision returns statistics on the absolute errors |want[i] - have[i]|.
//
// Returns an error wrapping [herrors.ErrDimension] if the slices are empty or of different lengths.
func Precision(want, have []float64) (s PrecisionStats, err error) {

	if len(want) == 0 || len(want) != len(have) {
		return s, fmt.Errorf("cannot Precision: %w: %d expected values for %d decrypted values", herrors.ErrDimension, len(want), len(have))
	}

	diff := make(stats.Float64Data, len(want))
	for i := range want {
		diff[i] = math.Abs(want[i] - have[i])
	}

	if s.Mean, err = diff.Mean(); err != nil {
		return s, fmt.Errorf("cannot Precision: %w", err)
	}

	if s.Max, err = diff.Max(); err != nil {
		return s, fmt.Errorf("cannot Precision: %w", err)
	}

	if s.Median, err = diff.Median(); err != nil {
		return s, fmt.Errorf("cannot Precision: %w", err)
	}

	if s.P99, err = diff.Percentile(99); err != nil {
		return s, fmt.Errorf("cannot Precision: %w", err)
	}

	if s.StdDev, err = diff.StandardDeviation(); err != nil {
		return s, fmt.Errorf("cannot Precision: %w", err)
	}

	s.MinPrecision = math.Inf(1)
	if s.Max != 0 {
		s.MinPrecision = -math.Log2(s.Max)
	}

	return s, nil
}
