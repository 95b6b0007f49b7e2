package util

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sort"
	"time"
)

// --------------------------------------------------------------------------
// Latency statistics
// --------------------------------------------------------------------------

// Stats summarizes a set of samples. It is used by the perf command to report
// call latencies in milliseconds.
type Stats struct {
	Count        int     `json:"count"`
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	P50          float64 `json:"p50"`
	P99          float64 `json:"p99"`
}

// NewStats computes the summary of values. values is not modified.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sumSquaredDiffs float64
	for _, v := range sorted {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	return Stats{
		Count:        len(sorted),
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(sorted))),
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         mean,
		P50:          percentile(sorted, 50),
		P99:          percentile(sorted, 99),
	}
}

// NewLatencyStats converts durations to milliseconds and summarizes them.
func NewLatencyStats(samples []time.Duration) Stats {
	values := make([]float64, len(samples))
	for i, d := range samples {
		values[i] = float64(d) / float64(time.Millisecond)
	}
	return NewStats(values)
}

// percentile uses the nearest-rank method on sorted values
func percentile(sorted []float64, p int) float64 {
	rank := int(math.Ceil(float64(p) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// --------------------------------------------------------------------------
// Random seeds
// --------------------------------------------------------------------------

// GenerateSeed returns a random 32 bit value, falling back to the clock if
// the system random source is unavailable.
func GenerateSeed() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(b[:])
}
