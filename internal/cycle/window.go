package cycle

import (
	"math"
	"sort"
)

// forwardFill replaces NaN values with the last non-NaN value before them.
// Leading NaNs stay NaN.
func forwardFill(values []float64) []float64 {
	out := make([]float64, len(values))
	last := math.NaN()
	for i, v := range values {
		if !math.IsNaN(v) {
			last = v
		}
		out[i] = last
	}
	return out
}

// rollingMedian returns the median of the non-NaN values in the trailing
// window ending at each index. A window with no values yields NaN.
func rollingMedian(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	buf := make([]float64, 0, window)
	for i := range values {
		buf = buf[:0]
		for _, v := range values[windowStart(i, window) : i+1] {
			if !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		out[i] = median(buf)
	}
	return out
}

// rollingMean returns the mean of the non-NaN values in the trailing window
// ending at each index, requiring at least one value.
func rollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		sum, n := 0.0, 0
		for _, v := range values[windowStart(i, window) : i+1] {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// laggedBlockMean returns, for each index i, the mean of the span values
// ending offset positions before i: values[i-offset-span+1 .. i-offset].
// The block must be complete and free of NaNs, otherwise the result is NaN.
func laggedBlockMean(values []float64, offset, span int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		end := i - offset
		start := end - span + 1
		if start < 0 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		for _, v := range values[start : end+1] {
			sum += v
		}
		// NaN propagates through the sum
		out[i] = sum / float64(span)
	}
	return out
}

func windowStart(i, window int) int {
	if start := i - window + 1; start > 0 {
		return start
	}
	return 0
}

// median sorts vals in place.
func median(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
