// Package formulas provides the statistics primitives shared by the risk calculators.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is used to scale between daily and annual volatility.
const TradingDaysPerYear = 252

// indexEpsilon absorbs binary rounding in tail*n products, e.g. (1-0.90)*10 = 0.9999999999999998.
const indexEpsilon = 1e-9

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// Variance calculates the sample variance (n-1 denominator)
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// StdDev calculates the sample standard deviation
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// SortedCopy returns an ascending copy of data; the input is never reordered.
func SortedCopy(data []float64) []float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return sorted
}

// PercentileIndex returns floor(tail*n) clamped to [0, n-1].
// tail is the lower-tail probability, e.g. 0.05 for a 95% confidence level.
// Returns -1 when n is zero.
func PercentileIndex(n int, tail float64) int {
	if n <= 0 {
		return -1
	}

	idx := int(math.Floor(tail*float64(n) + indexEpsilon))
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// Percentile returns the p-th percentile (0-100) of an ascending slice using linear interpolation.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	pos := p / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// LinearRegressionSlope returns the ordinary-least-squares slope of series against its index
// (x = 0, 1, 2, ...). Fewer than two points, or a flat x axis, yield 0.
func LinearRegressionSlope(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}

	xs := make([]float64, len(series))
	for i := range xs {
		xs[i] = float64(i)
	}

	_, slope := stat.LinearRegression(xs, series, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}
