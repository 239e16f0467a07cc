package features

import (
	"fmt"
	"math"
)

// Window is the number of trailing ticks the classifier sees.
const Window = 20

// VectorLen is the width of the classifier input: prices, volumes and price diffs.
const VectorLen = 3*Window - 1

// LogReturns computes r_t = ln(p_t / p_{t-1}).
// It returns a slice of length len(prices)-1, or nil if insufficient data.
// Non-positive prices yield a zero return rather than NaN.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Diff returns the first differences of xs.
func Diff(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}

// Tail returns the last n elements of xs (all of them if shorter).
func Tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// Vector builds the classifier input from the trailing window:
// last 20 prices, last 20 volumes, 19 diffs of those prices.
func Vector(prices, volumes []float64) ([]float64, error) {
	if len(prices) < Window {
		return nil, fmt.Errorf("need %d prices, got %d", Window, len(prices))
	}
	if len(volumes) < Window {
		return nil, fmt.Errorf("need %d volumes, got %d", Window, len(volumes))
	}
	p := Tail(prices, Window)
	v := Tail(volumes, Window)
	out := make([]float64, 0, VectorLen)
	out = append(out, p...)
	out = append(out, v...)
	out = append(out, Diff(p)...)
	return out, nil
}

// MeanVariance returns the population mean and variance of xs.
func MeanVariance(xs []float64) (mean, variance float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	n := float64(len(xs))
	for _, x := range xs {
		mean += x
	}
	mean /= n
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	return mean, variance / n
}
