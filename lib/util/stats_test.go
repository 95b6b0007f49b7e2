package util

import (
	"math"
	"testing"
	"time"
)

func TestNewStats(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Stats
	}{
		{
			name:   "empty",
			values: nil,
			want:   Stats{},
		},
		{
			name:   "single value",
			values: []float64{4},
			want:   Stats{Count: 1, Min: 4, Max: 4, Mean: 4, P50: 4, P99: 4},
		},
		{
			name:   "unsorted values",
			values: []float64{4, 2, 8, 6},
			want:   Stats{Count: 4, StdDeviation: math.Sqrt(5), Min: 2, Max: 8, Mean: 5, P50: 4, P99: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStats(tt.values)
			if got != tt.want {
				t.Errorf("NewStats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewLatencyStats(t *testing.T) {
	got := NewLatencyStats([]time.Duration{time.Millisecond, 3 * time.Millisecond})
	if got.Mean != 2 || got.Min != 1 || got.Max != 3 {
		t.Errorf("unexpected stats %+v", got)
	}
}
