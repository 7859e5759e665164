package predictor

import (
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// LatencyStats summarises the latencies of a batch of requests.
type LatencyStats struct {
	Mean   time.Duration
	Median time.Duration
	P99    time.Duration
	Max    time.Duration
}

func (s LatencyStats) String() string {
	return fmt.Sprintf("mean=%s median=%s p99=%s max=%s", s.Mean, s.Median, s.P99, s.Max)
}

// SummarizeLatency returns the latency statistics of the given durations.
func SummarizeLatency(elapsed []time.Duration) (s LatencyStats, err error) {

	data := make(stats.Float64Data, len(elapsed))
	for i, d := range elapsed {
		data[i] = float64(d)
	}

	var v float64

	if v, err = data.Mean(); err != nil {
		return s, fmt.Errorf("cannot SummarizeLatency: %w", err)
	}
	s.Mean = time.Duration(v)

	if v, err = data.Median(); err != nil {
		return s, fmt.Errorf("cannot SummarizeLatency: %w", err)
	}
	s.Median = time.Duration(v)

	if v, err = data.Percentile(99); err != nil {
		return s, fmt.Errorf("cannot SummarizeLatency: %w", err)
	}
	s.P99 = time.Duration(v)

	if v, err = data.Max(); err != nil {
		return s, fmt.Errorf("cannot SummarizeLatency: %w", err)
	}
	s.Max = time.Duration(v)

	return s, nil
}
