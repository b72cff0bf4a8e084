package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the analysis and reward code, backed by gonum

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Sum returns the sum of a slice
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Sum(data)
}

// SumSquares returns the sum of squared values (signal energy)
func SumSquares(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Dot(data, data)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(SumSquares(data) / float64(len(data)))
}

// Diff returns successive differences data[i+1]-data[i]
func Diff(data []float64) []float64 {
	if len(data) < 2 {
		return []float64{}
	}
	diffs := make([]float64, len(data)-1)
	floats.SubTo(diffs, data[1:], data[:len(data)-1])
	return diffs
}

// ArgMax returns the index of the largest value; ties resolve to the lowest index
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	return floats.MaxIdx(data)
}

// AllFinite reports whether every value is neither NaN nor infinite
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clamp restricts value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
