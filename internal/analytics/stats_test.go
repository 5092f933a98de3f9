package analytics

import (
	"math"
	"testing"
)

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	if got := computePercentile(sorted, 0.50); got != 3 {
		t.Errorf("median = %v, want 3", got)
	}
	if got := computePercentile(sorted, 0.25); got != 2 {
		t.Errorf("p25 = %v, want 2", got)
	}
	if got := computePercentile(sorted, 0); got != 1 {
		t.Errorf("p0 = %v, want 1", got)
	}
	if got := computePercentile(sorted, 1); got != 5 {
		t.Errorf("p100 = %v, want 5", got)
	}
}

func TestComputePercentile_Interpolates(t *testing.T) {
	sorted := []float64{10, 20}
	if got := computePercentile(sorted, 0.50); got != 15 {
		t.Errorf("median of pair = %v, want 15", got)
	}
}

func TestComputePercentile_Degenerate(t *testing.T) {
	if got := computePercentile(nil, 0.5); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
	if got := computePercentile([]float64{7}, 0.9); got != 7 {
		t.Errorf("single = %v, want 7", got)
	}
}

func TestComputeMeanStddev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(values)
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}
	// Sample stddev with n-1 denominator.
	stddev := computeStddev(values, mean)
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(stddev-want) > 1e-9 {
		t.Errorf("stddev = %v, want %v", stddev, want)
	}
}

func TestComputeStddev_TooFewSamples(t *testing.T) {
	if got := computeStddev([]float64{3}, 3); got != 0 {
		t.Errorf("single sample stddev = %v, want 0", got)
	}
}
